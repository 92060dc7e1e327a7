package ion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnresolvedSymbol = errors.New("ion: unresolved symbol")
	ErrInvalidValue     = errors.New("ion: invalid value")
	ErrMalformed        = errors.New("ion: malformed binary")
)

// SymbolError reports a symbol reference the active resolver does not
// declare. Path lists the enclosing field names and list indices, outermost
// first.
type SymbolError struct {
	ID   SymbolID
	Path []string
}

func (e *SymbolError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%v: $%d", ErrUnresolvedSymbol, e.ID)
	}
	return fmt.Sprintf("%v: $%d at %s", ErrUnresolvedSymbol, e.ID, strings.Join(e.Path, "."))
}

func (e *SymbolError) Unwrap() error { return ErrUnresolvedSymbol }

// within prefixes the path of a SymbolError with elem as it unwinds.
func within(err error, elem string) error {
	var se *SymbolError
	if errors.As(err, &se) {
		se.Path = append([]string{elem}, se.Path...)
	}
	return err
}
