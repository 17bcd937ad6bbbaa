// Package validation checks user-supplied post fields before they reach the store.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxCaptionLength = 2200
	MaxTags          = 30
	MaxTagLength     = 50
	MaxMediaURLs     = 10
)

var (
	hashtagRegex  = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)
	behaviorRegex = regexp.MustCompile(`^[\p{L}\p{N}_' -]+$`)
)

// ValidateCaption limits captions by character count.
func ValidateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("caption too long (max %d characters)", MaxCaptionLength)
	}
	return nil
}

// ValidateMediaURL requires an absolute http(s) URL.
func ValidateMediaURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("media url %q is not a valid url", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("media url must use http or https")
	}
	return nil
}

// ValidateMediaURLs validates a carousel.
func ValidateMediaURLs(urls []string) error {
	if len(urls) > MaxMediaURLs {
		return fmt.Errorf("too many media urls (max %d)", MaxMediaURLs)
	}
	for _, u := range urls {
		if err := ValidateMediaURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateHashtags accepts letters, digits and underscores after an optional '#'.
func ValidateHashtags(tags []string) error {
	return validateTags("hashtag", tags, hashtagRegex)
}

// ValidateBehaviors also allows spaces, hyphens and apostrophes ("head tilt").
func ValidateBehaviors(tags []string) error {
	return validateTags("behavior", tags, behaviorRegex)
}

func validateTags(kind string, tags []string, re *regexp.Regexp) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("too many %ss (max %d)", kind, MaxTags)
	}
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return fmt.Errorf("%s %q is too long (max %d characters)", kind, t, MaxTagLength)
		}
		if !re.MatchString(t) {
			return fmt.Errorf("%s %q contains invalid characters", kind, t)
		}
	}
	return nil
}
