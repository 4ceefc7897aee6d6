package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	log "github.com/sirupsen/logrus"
)

const summaryTimeLayout = "02.01.2006 15:04"

type SummaryService struct {
	client   *hiorg.Client
	location *time.Location
}

func formatTimestamp(ts hiorg.Int64, location *time.Location) string {
	if ts <= 0 {
		return "?"
	}
	return time.Unix(int64(ts), 0).In(location).Format(summaryTimeLayout)
}

// OperationsSummary lists the operations of the organization, one per line.
func (s *SummaryService) OperationsSummary(ctx context.Context) (string, error) {
	operations, err := s.client.ListOperations(ctx)
	if err != nil {
		return "", err
	}
	log.Debugf("fetched %d operations", len(operations))

	if len(operations) == 0 {
		return "Keine Einsätze gefunden", nil
	}

	var buf = new(bytes.Buffer)
	for _, op := range operations {
		buf.WriteString(fmt.Sprintf(
			"#%d %s - %s, %d Helfer\n",
			op.ID,
			formatTimestamp(op.Start, s.location),
			formatTimestamp(op.End, s.location),
			len(op.Personnel),
		))
	}
	return buf.String(), nil
}

// ResourcesSummary lists the free resources matching filter.
func (s *SummaryService) ResourcesSummary(ctx context.Context, filter string, start, end int64) (string, error) {
	resources, err := s.client.ListResources(ctx, filter, start, end)
	if err != nil {
		return "", err
	}

	if len(resources) == 0 {
		return fmt.Sprintf("Keine freien Einsatzmittel für '%s'", filter), nil
	}

	var buf = new(bytes.Buffer)
	for _, r := range resources {
		buf.WriteString(fmt.Sprintf("#%d [%s] %s\n", r.ID, r.Type, r.Name))
	}
	return buf.String(), nil
}
