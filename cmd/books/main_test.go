package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyExport = `[
  {"id": "a1", "userId": "alice", "value": "12.50", "type": "despesa", "category": "Food", "date": "2024-03-02", "description": "market"},
  {"id": "a2", "userId": "alice", "value": 1000, "type": "receita", "category": "Salary", "date": "2024-03-01", "description": "pay"},
  {"id": "a3", "userId": "alice", "value": "abc", "type": "despesa", "category": "Food", "date": "2024-03-03"},
  {"id": "b1", "uid": "bob", "value": "5", "type": "despesa", "category": "Misc", "date": "2024-03-04"}
]`

// testEnv runs commands against one database file.
type testEnv struct {
	t       *testing.T
	dir     string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: " + filepath.Join(dir, "books.db") + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0600))
	return &testEnv{t: t, dir: dir, cfgPath: cfgPath}
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	out, err := e.run(stdin, args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *testEnv) importLegacy() {
	e.t.Helper()
	path := filepath.Join(e.dir, "export.json")
	require.NoError(e.t, os.WriteFile(path, []byte(legacyExport), 0600))
	out := e.mustRun("", "legacy", "import", path)
	assert.Contains(e.t, out, "Imported 4 of 4")
}

func TestVersion(t *testing.T) {
	out := newTestEnv(t).mustRun("", "version")
	assert.Contains(t, out, "books version dev")
}

func TestOwnerRequired(t *testing.T) {
	_, err := newTestEnv(t).run("", "tx", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no owner configured")
}

func TestLegacyImport_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	out := env.mustRun("", "legacy", "import", filepath.Join(env.dir, "export.json"))
	assert.Contains(t, out, "Imported 0 of 4")

	owners := env.mustRun("", "legacy", "owners")
	assert.Contains(t, owners, "alice")
	assert.Contains(t, owners, "bob")
}

func TestMigrate_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	check := env.mustRun("", "legacy", "check", "--owner", "alice")
	assert.Contains(t, check, "Legacy transactions found")
	assert.Contains(t, check, "books migrate")

	// A check alone decides nothing
	assert.Contains(t, env.mustRun("", "legacy", "status", "--owner", "alice"), "not decided")

	out := env.mustRun("", "migrate", "--owner", "alice", "--yes")
	assert.Contains(t, out, "Migration complete")
	assert.Contains(t, out, "Moved:    2")
	assert.Contains(t, out, "Skipped:  1")

	assert.Contains(t, env.mustRun("", "legacy", "status", "--owner", "alice"), "migrated")
	assert.Contains(t, env.mustRun("", "backups", "list"), "(auto)")

	list := env.mustRun("", "tx", "list", "--owner", "alice", "--month", "3", "--year", "2024")
	assert.Contains(t, list, "market")
	assert.Contains(t, list, "pay")
	assert.NotContains(t, list, "(legacy")
	assert.Contains(t, list, "987.50")

	again := env.mustRun("", "migrate", "--owner", "alice", "--yes")
	assert.Contains(t, again, "already moved")
}

func TestMigrate_Declined(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	out := env.mustRun("n\n", "migrate", "--owner", "bob")
	assert.Contains(t, out, "[M] Move them")
	assert.Contains(t, out, "stay where they are")

	all := env.mustRun("", "legacy", "status", "--all")
	assert.Contains(t, all, "bob")
	assert.Contains(t, all, "declined")

	// Declined records stay visible in place
	list := env.mustRun("", "tx", "list", "--owner", "bob", "--month", "3", "--year", "2024")
	assert.Contains(t, list, "(legacy b1)")

	env.mustRun("", "legacy", "reset", "--owner", "bob")
	assert.Contains(t, env.mustRun("", "legacy", "status", "--owner", "bob"), "not decided")
}

func TestMigrate_Deferred(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	out := env.mustRun("l\n", "migrate", "--owner", "alice", "--no-backup")
	assert.Contains(t, out, "asked again")
	assert.Contains(t, env.mustRun("", "legacy", "status", "--owner", "alice"), "not decided")
	assert.Contains(t, env.mustRun("", "backups", "list"), "No backups")
}

func TestLegacyDecline_AndDryRun(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	assert.Contains(t, env.mustRun("", "legacy", "decline", "--owner", "alice"), "stay where they are")

	dry := env.mustRun("", "legacy", "dry-run", "--owner", "alice")
	assert.Contains(t, dry, "Dry run")
	assert.Contains(t, env.mustRun("", "legacy", "status", "--owner", "alice"), "declined")
}

func TestDiagnose(t *testing.T) {
	env := newTestEnv(t)
	env.importLegacy()

	out := env.mustRun("", "diagnose", "--owner", "bob")
	assert.Contains(t, out, "matched on uid")
	assert.Contains(t, out, "4 documents in total")
}

func TestTransactions_AddAndEdit(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("", "tx", "add", "--owner", "carol", "--amount", "42.10",
		"--kind", "despesa", "--category", "Food", "--date", "2024-05-06", "--description", "dinner")
	assert.Contains(t, out, "Recorded expense 42.10 on 2024-05-06")

	list := env.mustRun("", "tx", "list", "--owner", "carol", "--month", "5", "--year", "2024")
	assert.Contains(t, list, "dinner")
	assert.Contains(t, list, "-42.10")

	_, err := env.run("", "tx", "add", "--owner", "carol", "--amount", "ten", "--category", "Food")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")

	_, err = env.run("", "tx", "pay", "missing", "--owner", "carol")
	require.Error(t, err)

	_, err = env.run("", "tx", "list", "--owner", "carol", "--month", "13")
	require.Error(t, err)
}

func TestGroups(t *testing.T) {
	env := newTestEnv(t)

	assert.Contains(t, env.mustRun("", "groups", "list", "--owner", "dan"), "No groups")
	assert.Contains(t, env.mustRun("", "groups", "add", "Household", "--id", "home", "--owner", "dan"), "Created group Household (home)")

	list := env.mustRun("", "groups", "list", "--owner", "dan")
	assert.Contains(t, list, "Household")

	_, err := env.run("", "groups", "add", "Again", "--id", "home", "--owner", "dan")
	require.Error(t, err)
}

func TestGroups_EditDefaultDelete(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun("", "groups", "add", "Household", "--id", "home", "--owner", "dan")
	env.mustRun("", "groups", "add", "Travel", "--id", "trips", "--owner", "dan")

	out := env.mustRun("", "groups", "edit", "trips", "--name", "Holidays", "-d", "summer", "--owner", "dan")
	assert.Contains(t, out, "Updated group Holidays (trips)")
	list := env.mustRun("", "groups", "list", "--owner", "dan")
	assert.Contains(t, list, "Holidays")
	assert.Contains(t, list, "summer")
	assert.NotContains(t, list, "Travel")

	_, err := env.run("", "groups", "edit", "trips", "--owner", "dan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")

	_, err = env.run("", "groups", "edit", "missing", "--name", "x", "--owner", "dan")
	require.Error(t, err)

	assert.Contains(t, env.mustRun("", "groups", "default", "trips", "--owner", "dan"), "trips is now the default group")
	_, err = env.run("", "groups", "default", "missing", "--owner", "dan")
	require.Error(t, err)

	assert.Contains(t, env.mustRun("n\n", "groups", "delete", "home", "--owner", "dan"), "Deletion cancelled")
	assert.Contains(t, env.mustRun("", "groups", "delete", "home", "--force", "--owner", "dan"), "Deleted group Household")
	assert.NotContains(t, env.mustRun("", "groups", "list", "--owner", "dan"), "Household")

	_, err = env.run("", "groups", "delete", "trips", "--force", "--owner", "dan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only group")
}

var recordedID = regexp.MustCompile(`\(([^()\s]+)\)`)

func TestTransactions_EditFields(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("", "tx", "add", "--owner", "erin", "--amount", "30.00",
		"--category", "Food", "--date", "2024-05-06", "--description", "lunch")
	match := recordedID.FindAllStringSubmatch(out, -1)
	require.NotEmpty(t, match, out)
	id := match[len(match)-1][1]

	assert.Contains(t, env.mustRun("", "tx", "edit", id, "--owner", "erin",
		"--amount", "12.75", "--description", "split lunch", "--date", "2024-06-01"), "Updated "+id)

	assert.NotContains(t, env.mustRun("", "tx", "list", "--owner", "erin", "--month", "5", "--year", "2024"), "lunch")
	june := env.mustRun("", "tx", "list", "--owner", "erin", "--month", "6", "--year", "2024")
	assert.Contains(t, june, "split lunch")
	assert.Contains(t, june, "-12.75")

	_, err := env.run("", "tx", "edit", id, "--owner", "erin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")

	_, err = env.run("", "tx", "edit", id, "--owner", "erin", "--amount", "lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")

	_, err = env.run("", "tx", "edit", id, "--owner", "erin", "--group", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = env.run("", "tx", "edit", "missing", "--owner", "erin", "--paid")
	require.Error(t, err)
}

func TestBackups(t *testing.T) {
	env := newTestEnv(t)

	assert.Contains(t, env.mustRun("", "backups", "create", "--name", "snap"), "Created backup snap")
	assert.Contains(t, env.mustRun("", "backups", "list"), "snap")

	assert.Contains(t, env.mustRun("n\n", "backups", "delete", "snap"), "Deletion cancelled")
	assert.Contains(t, env.mustRun("y\n", "backups", "delete", "snap"), "Deleted backup snap")
	assert.Contains(t, env.mustRun("", "backups", "list"), "No backups")
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{"512 B", 512},
		{"1.0 KB", 1024},
		{"1.5 MB", 1536 * 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

const statementOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>POS PURCHASE CORNER CAFE
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240131120000[0:GMT]
<TRNAMT>2000.00
<FITID>2024013101
<NAME>PAYROLL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1974.50
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestTransactions_ImportOFX(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "checking.qfx")
	require.NoError(t, os.WriteFile(path, []byte(statementOFX), 0600))

	dry := env.mustRun("", "tx", "import", path, "--owner", "erin", "--dry-run")
	assert.Contains(t, dry, "2 transactions would be imported")

	out := env.mustRun("", "tx", "import", path, "--owner", "erin")
	assert.Contains(t, out, "Imported 2 transactions (0 already recorded")

	list := env.mustRun("", "tx", "list", "--owner", "erin", "--month", "1", "--year", "2024")
	assert.Contains(t, list, "CORNER CAFE")
	assert.Contains(t, list, "PAYROLL")
	assert.Contains(t, list, "1974.50")

	again := env.mustRun("", "tx", "import", path, "--owner", "erin")
	assert.Contains(t, again, "Imported 0 transactions (2 already recorded")

	bad := filepath.Join(env.dir, "broken.ofx")
	require.NoError(t, os.WriteFile(bad, []byte("not a statement"), 0600))
	assert.Contains(t, env.mustRun("", "tx", "import", bad, "--owner", "erin"), "No transactions found")
}
