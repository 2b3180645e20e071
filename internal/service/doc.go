// Package service contains the application use cases: generating a review
// from images or a keyword, managing saved comments, seeding categories and
// binding a user's phone number.
//
// Services receive their collaborators through constructors and depend only
// on the store interfaces and the vendor-neutral generation and vision
// packages, never on a concrete database or vendor client. Every operation
// fails with *Error, whose Kind tells the delivery layer how to respond.
//
// ReviewService.Generate runs a fixed pipeline:
//
//	validating -> recognizing_images (when images are given) -> resolving_category
//	-> prompting -> generating -> persisting -> done
//
// Any stage failure ends the call; there are no retries inside one call. The
// comment insert and the category usage increment share one transaction.
package service
