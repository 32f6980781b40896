package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoAnswer = errors.New("no answer given")

// prompt asks question on w and returns the first non-empty line read from r
func prompt(r io.Reader, w io.Writer, question string) (string, error) {
	scanner := bufio.NewScanner(r)

	for {
		if _, err := fmt.Fprintf(w, "%s: ", question); err != nil {
			return "", fmt.Errorf("writing prompt: %w", err)
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading answer: %w", err)
			}
			return "", errNoAnswer
		}

		if answer := strings.TrimSpace(scanner.Text()); answer != "" {
			return answer, nil
		}
	}
}
