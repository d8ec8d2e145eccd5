package odoo

// Selectors for the Odoo 17 web client. They track the vendor UI and are
// expected to change with it.
const (
	// Login page
	SelectorLoginInput    = "input#login"
	SelectorPasswordInput = "input#password"
	SelectorDatabaseInput = "select#db"
	SelectorLoginButton   = `form.oe_login_form button[type="submit"]`
	SelectorLoginError    = "form.oe_login_form .alert-danger"

	// Backend shell
	SelectorMainNavbar = "nav.o_main_navbar"

	// List view
	SelectorListView         = ".o_list_view"
	SelectorSearchInput      = "input.o_searchview_input"
	SelectorSelectAllRows    = "thead .o_list_record_selector input"
	SelectorSelectionBox     = ".o_list_selection_box"
	SelectorSelectAllRecords = ".o_list_selection_box .o_list_select_domain"
	SelectorActionMenu       = ".o_cp_action_menus button.dropdown-toggle"
	SelectorActionMenuExport = `.o-dropdown--menu .dropdown-item:has-text("Export")`

	// Export dialog
	SelectorExportDialog      = ".o_export_data_dialog, .modal-content:has(.o_export_tree)"
	SelectorExportFormatCSV   = `.o_export_format input[value="csv"]`
	SelectorExportFormatXLSX  = `.o_export_format input[value="xlsx"]`
	SelectorExportTemplate    = "select.o_exported_lists_select"
	SelectorExportButton      = `.modal-footer button.btn-primary:has-text("Export")`
	SelectorExportCloseButton = `.modal-footer button:has-text("Close")`
)
