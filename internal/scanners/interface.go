package scanners

import "github.com/ASK1E/SASTRA/internal/model"

type Parser interface {
	Parse(raw []byte) (model.Report, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw []byte) (model.Report, error)

func (f ParserFunc) Parse(raw []byte) (model.Report, error) {
	return f(raw)
}
