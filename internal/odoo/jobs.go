package odoo

import (
	"fmt"
	"odoo-rpa/internal/entity"
	"sort"
	"strings"
	"time"
)

// PreviousMonth returns the calendar month before now as YYYY-MM.
func PreviousMonth(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	return firstOfMonth.AddDate(0, -1, 0).Format("2006-01")
}

var catalogue = map[string]entity.ExportJob{
	"contracts": {
		Name:        "contracts",
		Description: "Active subscription contracts",
		ActionPath:  "/web#action=sale_subscription.sale_subscription_action&view_type=list",
		Template:    "RPA Contracts",
		Prefix:      "contracts",
		Format:      entity.FormatXLSX,
		Endpoint:    "imports/contracts",
	},
	"billing": {
		Name:        "billing",
		Description: "Customer invoices of the previous month",
		ActionPath:  "/web#action=account.action_move_out_invoice_type&view_type=list",
		Template:    "RPA Billing",
		Prefix:      "billing",
		Format:      entity.FormatCSV,
		ConvertXLSX: true,
		Search:      PreviousMonth,
		Endpoint:    "imports/billing",
	},
	"payments": {
		Name:        "payments",
		Description: "Customer payments of the previous month",
		ActionPath:  "/web#action=account.action_account_payments&view_type=list",
		Template:    "RPA Payments",
		Prefix:      "payments",
		Format:      entity.FormatCSV,
		ConvertXLSX: true,
		Search:      PreviousMonth,
		Endpoint:    "imports/payments",
	},
	"tickets": {
		Name:        "tickets",
		Description: "Helpdesk tickets",
		ActionPath:  "/web#action=helpdesk.helpdesk_ticket_action_main_tree&view_type=list",
		Template:    "RPA Tickets",
		Prefix:      "tickets",
		Format:      entity.FormatCSV,
		Endpoint:    "imports/tickets",
	},
}

// Jobs lists the built-in export jobs ordered by name.
func Jobs() []entity.ExportJob {
	jobs := make([]entity.ExportJob, 0, len(catalogue))
	for _, job := range catalogue {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Name < jobs[j].Name
	})

	return jobs
}

// LookupJobs resolves job names; no names means every job.
func LookupJobs(names ...string) ([]entity.ExportJob, error) {
	if len(names) == 0 {
		return Jobs(), nil
	}

	jobs := make([]entity.ExportJob, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))

		job, ok := catalogue[key]
		if !ok {
			return nil, fmt.Errorf("unknown export job %q (known: %s)", name, strings.Join(jobNames(), ", "))
		}

		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func jobNames() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
