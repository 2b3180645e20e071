// Package generation defines the boundary to the language models that write
// review text. It owns the prompt contract shared by every provider; concrete
// clients live under internal/platform.
package generation
