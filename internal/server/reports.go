package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func registerReports(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "log-report",
		Method:      http.MethodGet,
		Path:        "/logs/{id}/report",
		Summary:     "Download the PDF report of a log",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "PDF report",
				Content:     map[string]*huma.MediaType{contentTypePDF: {}},
			},
		},
	}, func(ctx context.Context, input *logPath) (*fileOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		data, filename, err := d.engine.RenderReport(ctx, input.ID, principal.Actor())
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &fileOutput{
			ContentType:        contentTypePDF,
			ContentDisposition: attachment(filename),
			Body:               data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "log-register",
		Method:      http.MethodGet,
		Path:        "/reports/register",
		Summary:     "Download the logs visible to the caller as a spreadsheet",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "xlsx workbook",
				Content:     map[string]*huma.MediaType{contentTypeXLSX: {}},
			},
		},
	}, func(ctx context.Context, input *logQuery) (*fileOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		buf, filename, err := d.engine.ExportRegister(ctx, input.filter(), principal.Actor())
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &fileOutput{
			ContentType:        contentTypeXLSX,
			ContentDisposition: attachment(filename),
			Body:               buf.Bytes(),
		}, nil
	})
}
