package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/export"
)

const documentTimeLayout = "2006-01-02 15:04"

type attachmentLister interface {
	ListByRequest(ctx context.Context, requestID int64) ([]models.Attachment, error)
}

type historyExporter interface {
	HistoryAll(ctx context.Context, actor models.Actor, query dto.HistoryQuery) ([]dto.HistoryItem, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// Rendered is a generated file.
type Rendered struct {
	FileName    string
	ContentType string
	Body        []byte
}

// DocumentService renders printable request summaries and history exports.
type DocumentService struct {
	requests    requestReader
	attachments attachmentLister
	history     historyExporter
	machine     *approval.Machine
	pdf         pdfRenderer
	csv         csvRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewDocumentService wires the exporters.
func NewDocumentService(requests requestReader, attachments attachmentLister, history historyExporter, machine *approval.Machine, pdf pdfRenderer, csv csvRenderer, logger *zap.Logger) *DocumentService {
	if machine == nil {
		machine = approval.NewMachine(nil)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		requests:    requests,
		attachments: attachments,
		history:     history,
		machine:     machine,
		pdf:         pdf,
		csv:         csv,
		logger:      logger,
		now:         time.Now,
	}
}

// RequestPDF renders the committed snapshot of one request.
func (s *DocumentService) RequestPDF(ctx context.Context, actor models.Actor, id int64) (*Rendered, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := authorizeView(s.machine.Registry(), actor, req); err != nil {
		return nil, err
	}
	views, err := s.machine.StageViews(req.Approval)
	if err != nil {
		return nil, configurationError(err)
	}

	doc := export.Document{
		Title:    kindLabel(req.Kind) + " Request",
		Subtitle: req.Title,
		Fields: []export.Field{
			{Label: "Reference", Value: fmt.Sprintf("#%d", req.ID)},
			{Label: "Submitted", Value: req.SubmittedAt.UTC().Format(documentTimeLayout)},
			{Label: "Status", Value: req.Approval.NotificationStatus},
		},
	}
	if req.Description != "" {
		doc.Fields = append(doc.Fields, export.Field{Label: "Description", Value: req.Description})
	}
	doc.Fields = append(doc.Fields, payloadFields(req)...)
	doc.Tables = append(doc.Tables, export.NamedTable{Caption: "Approvals", Table: stageTable(views)})
	if table, ok := payloadTable(req); ok {
		doc.Tables = append(doc.Tables, table)
	}

	if s.attachments != nil {
		items, err := s.attachments.ListByRequest(ctx, req.ID)
		if err != nil {
			s.logger.Warn("document rendered without attachments", zap.Int64("request_id", req.ID), zap.Error(err))
		} else if len(items) > 0 {
			table := export.Table{Headers: []string{"File", "Type", "Size (bytes)"}}
			for _, item := range items {
				table.Rows = append(table.Rows, []string{item.OriginalName, item.ContentType, strconv.FormatInt(item.SizeBytes, 10)})
			}
			doc.Tables = append(doc.Tables, export.NamedTable{Caption: "Attachments", Table: table})
		}
	}
	doc.Footer = "Generated " + s.now().UTC().Format(documentTimeLayout) + " UTC"

	body, err := s.pdf.Render(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render document")
	}
	return &Rendered{
		FileName:    fmt.Sprintf("request-%d.pdf", req.ID),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

// HistoryCSV exports the caller's decision history.
func (s *DocumentService) HistoryCSV(ctx context.Context, actor models.Actor, query dto.HistoryQuery) (*Rendered, error) {
	items, err := s.history.HistoryAll(ctx, actor, query)
	if err != nil {
		return nil, err
	}
	table := export.Table{Headers: []string{"ID", "Kind", "Title", "Stage", "Decision", "Decided At", "Remark", "Final Status"}}
	for _, item := range items {
		decidedAt := ""
		if item.DecidedAt != nil {
			decidedAt = item.DecidedAt.UTC().Format(time.RFC3339)
		}
		remark := ""
		if item.Remark != nil {
			remark = *item.Remark
		}
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(item.ID, 10),
			string(item.Kind),
			item.Title,
			item.Stage,
			string(item.Decision),
			decidedAt,
			remark,
			string(item.FinalStatus),
		})
	}
	body, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &Rendered{
		FileName:    fmt.Sprintf("history-%s-%s.csv", actor.Role, s.now().UTC().Format("20060102")),
		ContentType: "text/csv",
		Body:        body,
	}, nil
}

func stageTable(views []approval.StageView) export.Table {
	table := export.Table{Headers: []string{"Signatory", "Status", "Date", "Remark"}}
	for _, view := range views {
		date := "-"
		if view.DecidedAt != nil {
			date = view.DecidedAt.UTC().Format(documentTimeLayout)
		}
		remark := ""
		if view.Remark != nil {
			remark = *view.Remark
		}
		table.Rows = append(table.Rows, []string{view.Label, view.Display, date, remark})
	}
	return table
}

func payloadFields(req *models.Request) []export.Field {
	switch {
	case req.Funding != nil:
		return []export.Field{
			{Label: "Funding type", Value: string(req.Funding.Type)},
			{Label: "Amount", Value: req.Funding.Amount.StringFixed(2)},
		}
	case req.Venue != nil:
		return []export.Field{
			{Label: "Venue", Value: req.Venue.VenueName},
			{Label: "Starts", Value: req.Venue.StartsAt.UTC().Format(documentTimeLayout)},
			{Label: "Ends", Value: req.Venue.EndsAt.UTC().Format(documentTimeLayout)},
		}
	}
	return nil
}

func payloadTable(req *models.Request) (export.NamedTable, bool) {
	switch {
	case req.Funding != nil && len(req.Funding.CostBreakdown) > 0:
		table := export.Table{Headers: []string{"Item", "Qty", "Unit Cost", "Total"}}
		for _, item := range req.Funding.CostBreakdown {
			table.Rows = append(table.Rows, []string{
				item.Description,
				strconv.Itoa(item.Quantity),
				item.UnitCost.StringFixed(2),
				item.Total().StringFixed(2),
			})
		}
		return export.NamedTable{Caption: "Cost Breakdown", Table: table}, true
	case req.Venue != nil && len(req.Venue.Equipment) > 0:
		table := export.Table{Headers: []string{"Equipment", "Qty"}}
		for _, item := range req.Venue.Equipment {
			table.Rows = append(table.Rows, []string{item.Name, strconv.Itoa(item.Quantity)})
		}
		return export.NamedTable{Caption: "Equipment", Table: table}, true
	}
	return export.NamedTable{}, false
}
