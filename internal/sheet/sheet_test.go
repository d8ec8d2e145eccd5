package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const ticketsCSV = "\uFEFFNumber,Stage,Assigned to\n" +
	"1,New,Ana\n" +
	"2,In Progress,Ben\n" +
	"3,New\n" +
	"4,Solved,Ana\n" +
	"5,New,Ben,extra\n" +
	"6,In Progress,\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestReadCSV_StripsBOMAndPadsRows(t *testing.T) {
	table, err := ReadCSV(writeFile(t, "tickets.csv", ticketsCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Number", "Stage", "Assigned to"}, table.Header)
	require.Len(t, table.Rows, 6)
	assert.Equal(t, []string{"3", "New", ""}, table.Rows[2])
	assert.Equal(t, []string{"5", "New", "Ben"}, table.Rows[4])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(writeFile(t, "empty.csv", ""))
	assert.ErrorContains(t, err, "empty")
}

func TestGroupCount(t *testing.T) {
	table, err := ReadCSV(writeFile(t, "tickets.csv", ticketsCSV))
	require.NoError(t, err)

	stages, err := table.GroupCount("stage")
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{Key: "New", Count: 3},
		{Key: "In Progress", Count: 2},
		{Key: "Solved", Count: 1},
	}, stages)

	owners, err := table.GroupCount("Assigned to")
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{Key: "(empty)", Count: 2},
		{Key: "Ana", Count: 2},
		{Key: "Ben", Count: 2},
	}, owners)

	_, err = table.GroupCount("Priority")
	assert.ErrorContains(t, err, "not found")
}

func TestWriteXLSX_RoundTripsThroughRead(t *testing.T) {
	src := writeFile(t, "billing_2025-03-07T09-05-01-234Z.csv", ticketsCSV)

	out, err := ConvertCSV(src)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(out))

	table, err := Read(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Number", "Stage", "Assigned to"}, table.Header)
	assert.Len(t, table.Rows, 6)
	assert.Equal(t, []string{"3", "New", ""}, table.Rows[2])

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	panes, err := f.GetPanes("Sheet1")
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)
}

func TestWriteXLSX_RequiresHeader(t *testing.T) {
	assert.Error(t, WriteXLSX(&Table{}, filepath.Join(t.TempDir(), "x.xlsx")))
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read(writeFile(t, "report.pdf", "%PDF"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
