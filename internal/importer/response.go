package importer

import (
	"fmt"
	"math"
	"net/http"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/models"
)

// DuplicateDownloadPrefix is the route duplicate reports are served from.
const DuplicateDownloadPrefix = "/api/v1/clients/duplicates/"

// Response renders the outcome as an HTTP status and JSON body.
func (o *Outcome) Response() (int, map[string]interface{}) {
	if o.Background {
		return http.StatusAccepted, map[string]interface{}{
			"message":       "Large file received. Processing in background...",
			"totalRows":     o.TotalRows,
			"status":        "processing",
			"estimatedTime": fmt.Sprintf("%d seconds", int(math.Ceil(float64(o.TotalRows)/100))),
		}
	}
	if o.Upsert != nil {
		return http.StatusOK, o.upsertBody()
	}
	return http.StatusCreated, o.insertBody()
}

func (o *Outcome) insertBody() map[string]interface{} {
	res := o.Insert
	if res == nil {
		res = &InsertResult{}
	}
	clients := res.Clients
	if clients == nil {
		clients = []*models.Client{}
	}

	body := map[string]interface{}{
		"message":           "CSV upload processed successfully",
		"totalRows":         o.TotalRows,
		"newRecords":        res.NewRecords,
		"duplicatesSkipped": res.DuplicatesSkipped,
		"failedRecords":     res.Failed,
		"clients":           clients,
		"columnInfo":        columnInfo(o.Layout),
	}
	if res.DuplicatesSkipped > 0 {
		body["skippedTradingCodes"] = res.SkippedCodes
		body["duplicateMessage"] = fmt.Sprintf("%d record(s) skipped because Trading Code already exists", res.DuplicatesSkipped)
	}
	if res.DuplicateFile != nil {
		body["duplicateFile"] = map[string]interface{}{
			"filename":    res.DuplicateFile.Name,
			"downloadUrl": DuplicateDownloadPrefix + res.DuplicateFile.Name,
			"recordCount": res.DuplicatesSkipped,
		}
	}
	if res.Failed > 0 {
		body["failedRecordsDetails"] = res.Failures
		body["failedMessage"] = fmt.Sprintf("%d record(s) failed to save", res.Failed)
	}
	if o.Layout != nil && len(o.Layout.Missing) > 0 {
		body["warnings"] = []string{fmt.Sprintf("%d expected column(s) are missing", len(o.Layout.Missing))}
	}
	return body
}

func (o *Outcome) upsertBody() map[string]interface{} {
	res := o.Upsert
	detected := []string{}
	totalExpected := 0
	if o.Layout != nil {
		detected = o.Layout.Detected
		totalExpected = o.Layout.TotalExpected
	}
	updated := res.UpdatedCodes
	if updated == nil {
		updated = []string{}
	}
	inserted := res.InsertedClients
	if inserted == nil {
		inserted = []*models.Client{}
	}

	body := map[string]interface{}{
		"message":          "CSV update/insert processed successfully",
		"totalRows":        o.TotalRows,
		"updatedRecords":   res.Updated,
		"insertedRecords":  res.Inserted,
		"duplicatesInFile": res.DuplicatesInFile,
		"failedRecords":    res.Failed,
		"detectedColumns":  detected,
		"summary": map[string]interface{}{
			"columnsInCSV":                len(detected),
			"totalExpectedColumns":        totalExpected,
			"onlySpecifiedColumnsUpdated": true,
		},
		"updatedTradingCodes": updated,
		"insertedClients":     inserted,
	}
	if res.Failed > 0 {
		body["failedRecordsDetails"] = res.Failures
		body["failedMessage"] = fmt.Sprintf("%d record(s) failed to process", res.Failed)
	}
	return body
}

func columnInfo(l *columns.Layout) map[string]interface{} {
	if l == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"detectedColumns": l.Detected,
		"missingColumns":  l.Missing,
		"extraColumns":    l.Extra,
		"totalDetected":   len(l.Detected),
		"totalExpected":   l.TotalExpected,
	}
}
