package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func parseJobID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}
