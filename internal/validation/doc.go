// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package validation validates API request structs with
// go-playground/validator v10.
//
// A single validator instance caches struct metadata and carries two custom
// tags, mediatype and liststatus. Failures become *RequestValidationError,
// which ToAPIError turns into the VALIDATION_ERROR envelope:
//
//	type setStatusRequest struct {
//	    MediaID   int    `json:"mediaId" validate:"required,gt=0"`
//	    MediaType string `json:"mediaType" validate:"required,mediatype"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation
