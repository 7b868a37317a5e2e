package objectstore

import (
	"fmt"
	"path/filepath"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// TokenLength matches the 13 base36 characters used for stored file names.
const TokenLength = 13

// PathGenerator builds collision-resistant storage paths for attachments.
type PathGenerator struct {
	token func() string
}

func NewPathGenerator() (*PathGenerator, error) {
	gen, err := nanoid.CustomASCII(tokenAlphabet, TokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}
	return &PathGenerator{token: gen}, nil
}

// AttachmentPath returns attachments/<taskID>/<token>.<ext>.
func (g *PathGenerator) AttachmentPath(taskID, fileName string) string {
	name := g.token()
	if ext := extension(fileName); ext != "" {
		name += "." + ext
	}
	return "attachments/" + taskID + "/" + name
}

func extension(fileName string) string {
	base := filepath.Base(filepath.Clean(fileName))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

// MustPathGenerator is like NewPathGenerator but panics on error.
func MustPathGenerator() *PathGenerator {
	g, err := NewPathGenerator()
	if err != nil {
		panic(err)
	}
	return g
}
