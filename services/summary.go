package services

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"autocurator/filters"
	"autocurator/models"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Summarize writes the one-line summary stored with a vehicle, e.g.
// "2021 Toyota RAV4 XLE, 28,000 mi (excellent), $18,500. Clean title, no accidents, 1 owner."
func Summarize(v *models.Vehicle) string {
	var sb strings.Builder

	// Years must not pass through the printer, it would group the digits.
	head := strings.TrimSpace(strings.Join([]string{strconv.Itoa(v.Year), v.Make, v.Model, v.Trim}, " "))
	sb.WriteString(head)

	sb.WriteString(printer.Sprintf(", %d mi", v.Mileage))
	if v.MileageRating != "" {
		sb.WriteString(" (" + v.MileageRating + ")")
	}
	if v.Price > 0 {
		sb.WriteString(printer.Sprintf(", $%d", int64(v.Price+0.5)))
	}
	sb.WriteString(".")

	var notes []string
	if strings.EqualFold(v.TitleStatus, "clean") {
		notes = append(notes, "Clean title")
	}
	if v.AccidentCount != nil && *v.AccidentCount == 0 {
		notes = append(notes, "no accidents")
	}
	if v.OwnerCount != nil {
		if *v.OwnerCount == 1 {
			notes = append(notes, "1 owner")
		} else {
			notes = append(notes, printer.Sprintf("%d owners", *v.OwnerCount))
		}
	}
	if v.Distance != nil {
		notes = append(notes, printer.Sprintf("%d mi away", int(*v.Distance+0.5)))
	}
	if v.FlagRustConcern {
		notes = append(notes, "rust-belt history, inspect underbody")
	}
	if len(notes) > 0 {
		notes[0] = capitalize(notes[0])
		sb.WriteString(" " + strings.Join(notes, ", ") + ".")
	}

	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// rating converts the filter rating to the persisted form; listings without
// a rating keep an empty string.
func rating(r filters.MileageRating) string {
	if r == filters.MileageExceeds {
		return ""
	}
	return string(r)
}
