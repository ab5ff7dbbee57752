// muni-resolve prints which municipality governs a coordinate and who would be
// e-mailed for a category. Useful when editing a MUNICIPALITIES_FILE.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"civic-api/internal/config"
	"civic-api/internal/geo"
	"civic-api/internal/issue"
	"civic-api/internal/logger"
	"civic-api/internal/municipality"
	"civic-api/internal/notify"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()

	lat := flag.Float64("lat", 0, "latitude")
	lng := flag.Float64("lng", 0, "longitude")
	category := flag.String("category", municipality.GeneralCategory, "issue category")
	file := flag.String("file", os.Getenv("MUNICIPALITIES_FILE"), "registry file (yaml or json); built-in registry when empty")
	preview := flag.Bool("preview", false, "print the new-issue e-mail that would be sent")
	flag.Parse()

	p := geo.Coordinate{Latitude: *lat, Longitude: *lng}
	if err := p.Validate(); err != nil {
		l.Error("coordinate_invalid", "err", err)
		os.Exit(2)
	}

	opts := municipality.Options{OversightEmail: os.Getenv("OVERSIGHT_EMAIL"), Logger: l}
	var (
		reg *municipality.Registry
		err error
	)
	if *file != "" {
		reg, err = municipality.LoadFile(*file, opts)
	} else {
		reg, err = municipality.DefaultRegistry(opts)
	}
	if err != nil {
		l.Error("registry_error", "err", err)
		os.Exit(1)
	}

	info := reg.Info(p)
	to := reg.DepartmentEmails(p, *category)
	fmt.Printf("coordinate:   %s\n", p)
	fmt.Printf("municipality: %s (%s) found=%t\n", info.Name, info.Code, info.Found)
	fmt.Printf("category:     %s\n", *category)
	for _, addr := range to {
		fmt.Printf("recipient:    %s\n", addr)
	}
	if !*preview {
		return
	}
	now := time.Now().UTC()
	it := issue.Issue{
		Type:       *category,
		Coordinate: p,
		Address:    "(preview)",
		Status:     issue.StatusReported,
		ReportID:   issue.NewReportID(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	msg := notify.Compose(it, notify.KindNew, info, to)
	fmt.Printf("\nTo: %v\nSubject: %s\n\n%s", msg.To, msg.Subject, msg.Body)
}
