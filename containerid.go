package kfx

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContainerIDPrefix opens every container id.
const ContainerIDPrefix = "CR!"

var (
	containerIDPattern = regexp.MustCompile(`^CR![A-Z0-9]{28}$`)

	// containerNamespace seeds reproducible container ids.
	containerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/logicossoftware/go-kfx/container"))

	newRandomUUID = uuid.NewRandom
)

// ValidContainerID reports whether id has the form "CR!" followed by 28
// uppercase letters or digits.
func ValidContainerID(id string) bool { return containerIDPattern.MatchString(id) }

// ContainerIDFor derives the reproducible container id of a book from its
// metadata. Books with equal BookID, or equal title, authors and language
// when BookID is empty, share an id.
func ContainerIDFor(m Metadata) string {
	seed := m.BookID
	if seed == "" {
		seed = m.Title + "\x00" + strings.Join(m.Authors, "\x01") + "\x00" + m.Language
	}
	return containerIDFromUUID(uuid.NewSHA1(containerNamespace, []byte(seed)), uuid.NewMD5(containerNamespace, []byte(seed)))
}

// RandomContainerID draws a fresh container id.
func RandomContainerID() (string, error) {
	a, err := newRandomUUID()
	if err != nil {
		return "", fmt.Errorf("kfx: container id: %w", err)
	}
	b, err := newRandomUUID()
	if err != nil {
		return "", fmt.Errorf("kfx: container id: %w", err)
	}
	return containerIDFromUUID(a, b), nil
}

// containerIDFromUUID takes 28 hex digits from a and b, skipping the
// version and variant nibbles so every digit carries entropy.
func containerIDFromUUID(a, b uuid.UUID) string {
	var sb strings.Builder
	sb.Grow(len(ContainerIDPrefix) + 28)
	sb.WriteString(ContainerIDPrefix)
	for _, u := range []uuid.UUID{a, b} {
		digits := strings.ToUpper(hex.EncodeToString(u[:]))
		for i := 0; i < len(digits) && sb.Len() < len(ContainerIDPrefix)+28; i++ {
			if i == 12 || i == 16 {
				continue
			}
			sb.WriteByte(digits[i])
		}
	}
	return sb.String()
}

// resolveContainerID picks the id for a build from the configured options.
func (c *buildConfig) resolveContainerID(m Metadata) (string, error) {
	switch {
	case c.containerID != "":
		if !ValidContainerID(c.containerID) {
			return "", malformed("", "invalid container id %q", c.containerID)
		}
		return c.containerID, nil
	case c.randomID:
		return RandomContainerID()
	}
	return ContainerIDFor(m), nil
}
