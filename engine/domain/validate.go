package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	stateRegex  = regexp.MustCompile(`^[A-Z]{2}$`)
	errUnpaired = fmt.Errorf("%w: city and state must be given together", ErrInvalidQuery)
)

// NewSearchQuery validates caller input and builds a SearchQuery. Blank
// job titles fall back to DefaultJobTitle; whitespace inside the city is
// collapsed; the state is upper-cased.
func NewSearchQuery(jobTitle, city, state string) (SearchQuery, error) {
	jobTitle = strings.Join(strings.Fields(jobTitle), " ")
	city = strings.Join(strings.Fields(city), " ")
	state = strings.ToUpper(strings.TrimSpace(state))

	if jobTitle == "" {
		jobTitle = DefaultJobTitle
	}
	if (city == "") != (state == "") {
		field, value := "city", city
		if city == "" {
			field, value = "state", state
		}
		return SearchQuery{}, NewValidationError(field, value, errUnpaired)
	}
	if state != "" && !stateRegex.MatchString(state) {
		return SearchQuery{}, NewValidationError("state", state, ErrInvalidQuery)
	}
	return SearchQuery{JobTitle: jobTitle, City: city, State: state}, nil
}
