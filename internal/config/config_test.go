package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig_LoadsWithoutOdooCredentials(t *testing.T) {
	t.Setenv("ODOO_URL", "")
	t.Setenv("ODOO_LOGIN", "")
	t.Setenv("ODOO_PASSWORD", "")
	t.Setenv("REPORT_GROUP_BY", "Stage,Team")

	conf, err := GetConfig()

	require.NoError(t, err)
	assert.Equal(t, []string{"Stage", "Team"}, conf.ReportConfig.GroupBy)
	assert.Error(t, conf.OdooConfig.ValidateSession())
}

func TestOdooConfig_ValidateSession(t *testing.T) {
	err := (&OdooConfig{URL: "https://odoo.example.com"}).ValidateSession()

	require.Error(t, err)
	assert.Equal(t, "missing odoo settings: ODOO_LOGIN, ODOO_PASSWORD", err.Error())

	valid := &OdooConfig{URL: "https://odoo.example.com", Login: "rpa@example.com", Password: "secret"}
	assert.NoError(t, valid.ValidateSession())
}
