package gee

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrEmptyBody is returned by ShouldBindJSON when the request carries no body.
var ErrEmptyBody = errors.New("empty body")

const maxBodyBytes = 1 << 16

// ShouldBindJSON decodes exactly one JSON value into dst. Unknown fields are rejected.
func (c *Context) ShouldBindJSON(dst any) error {
	if c.Req.Body == nil {
		return ErrEmptyBody
	}
	decoder := json.NewDecoder(io.LimitReader(c.Req.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain only one JSON value")
	}
	return nil
}

// BindJSON is ShouldBindJSON plus a 400 response on failure.
func (c *Context) BindJSON(dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithError(http.StatusBadRequest, "Invalid JSON body")
		return err
	}
	return nil
}

// BindOptionalJSON accepts a missing or empty body and leaves dst untouched.
// A body that is present but malformed still yields a 400.
func (c *Context) BindOptionalJSON(dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, ErrEmptyBody) {
		return nil
	}
	c.AbortWithError(http.StatusBadRequest, "Invalid JSON body")
	return err
}
