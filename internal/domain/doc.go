// Package domain contains the core entities of the review service: review
// categories and the generated comments saved for their authors.
package domain
