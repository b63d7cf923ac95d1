package idgen

import (
	"strings"

	"github.com/google/uuid"
)

type IDGenerator interface {
	NewID() (string, error)
}

type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CorrelationID returns the supplied id when it is not blank, otherwise a
// fresh random one.
func CorrelationID(supplied string) string {
	if s := strings.TrimSpace(supplied); s != "" {
		return s
	}
	return uuid.NewString()
}
