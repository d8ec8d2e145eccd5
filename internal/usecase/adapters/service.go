package adapters

import (
	"context"
	"odoo-rpa/internal/entity"
)

type ExportService interface {
	Run(ctx context.Context, names ...string) (*entity.Run, error)
}

type ReportService interface {
	Run(ctx context.Context) (*entity.Run, error)
}
