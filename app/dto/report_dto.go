package dto

// ExportSettlementReportRequest selects the window for the admin settlement
// export. Dates are RFC3339; an empty window means everything.
type ExportSettlementReportRequest struct {
	AdminID uint    `json:"-"`
	From    *string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To      *string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ExportPriceListsRequest exports all price lists and tiers for review.
type ExportPriceListsRequest struct {
	AdminID uint `json:"-"`
}

// FileExportResponse carries a generated spreadsheet.
type FileExportResponse struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}
