package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random identifier. Used for bid ids and live
// connection ids.
func GenerateID() string {
	return uuid.NewString()
}
