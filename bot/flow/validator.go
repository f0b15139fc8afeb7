package flow

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	numberRe = regexp.MustCompile(`^-?\d+\.?\d*$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe  = regexp.MustCompile(`^\+?\d{10,15}$`)
	phoneSep = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

var dateFormats = []string{"2006-01-02", "02-01-2006", "02/01/2006", "01/02/2006"}

// ValidateInput checks user input against the step's requirements.
// It returns ok plus a user-facing error message on failure.
func ValidateInput(step *Step, text, buttonPayload string) (bool, string) {
	switch step.InputType {
	case InputImage, InputFile:
		val := strings.TrimSpace(text)
		if val != "" && (strings.HasPrefix(val, "/") || strings.HasPrefix(val, "media/") ||
			strings.Contains(val, "files/") || strings.HasPrefix(val, "http")) {
			return true, ""
		}
		kind := "file"
		if step.InputType == InputImage {
			kind = "image"
		}
		return false, fmt.Sprintf("Please upload an %s to continue.", kind)

	case InputButton:
		if buttonPayload != "" || text != "" {
			return true, ""
		}
		return false, "Please tap a button to continue."

	case InputForm:
		// The sub-form already validated on the client; text carries the
		// summary derived from the form response.
		if text != "" {
			return true, ""
		}
		return false, "Please complete the form."

	case InputNone:
		return true, ""
	}

	if text == "" {
		return false, "Please provide a response."
	}

	switch step.InputType {
	case InputSelect:
		if step.Options != "" && !selectMatches(step.Options, text) {
			return false, "Please choose one of: " + strings.ReplaceAll(step.Options, "|", ", ")
		}

	case InputNumber:
		cleaned := strings.ReplaceAll(strings.ReplaceAll(text, ",", ""), " ", "")
		if !numberRe.MatchString(cleaned) {
			return false, "Please enter a valid number."
		}

	case InputEmail:
		if !emailRe.MatchString(strings.TrimSpace(text)) {
			return false, "Please enter a valid email address."
		}

	case InputPhone:
		if !phoneRe.MatchString(phoneSep.Replace(text)) {
			return false, "Please enter a valid phone number."
		}

	case InputDate:
		if !dateMatches(strings.TrimSpace(text)) {
			return false, "Please enter a valid date (e.g., DD-MM-YYYY)."
		}
	}

	// Custom regex is an additional gate after the type check passes.
	// Patterns are anchored at the start of the input.
	if step.ValidationRegex != "" {
		re, err := regexp.Compile(`\A(?:` + step.ValidationRegex + `)`)
		if err == nil && !re.MatchString(text) {
			if step.ValidationError != "" {
				return false, step.ValidationError
			}
			return false, "Invalid format."
		}
	}

	return true, ""
}

func selectMatches(options, input string) bool {
	needle := strings.ToLower(strings.TrimSpace(input))
	for _, opt := range strings.Split(options, "|") {
		if strings.ToLower(strings.TrimSpace(opt)) == needle {
			return true
		}
	}
	return false
}

func dateMatches(input string) bool {
	for _, format := range dateFormats {
		if _, err := time.Parse(format, input); err == nil {
			return true
		}
	}
	return false
}
