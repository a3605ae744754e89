package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, xml string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(xml), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadWithOnlyUserScope(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(InstallPathEnvVar, "")
	writeConfigFile(t, home, `<?xml version="1.0"?>
<config remotes="primary">
  <remote name="primary" type="s3" packageLocation="s3://bucket/prefix"/>
  <cache removePreviousPackageOnLabelUpdate="true"/>
</config>`)

	merged, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.RemotesMap) != 1 {
		t.Fatalf("expected 1 remote, got %d", len(merged.RemotesMap))
	}
	if merged.Cache.RemovePreviousPackageOnLabelUpdate == nil || !*merged.Cache.RemovePreviousPackageOnLabelUpdate {
		t.Fatal("expected the user-scope cache policy to apply when no install-scope config exists")
	}
}

func TestLoadInstallScopeCacheWinsOverUserScope(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfigFile(t, home, `<?xml version="1.0"?>
<config>
  <cache removePreviousPackageOnLabelUpdate="true"/>
</config>`)

	installDir := t.TempDir()
	t.Setenv(InstallPathEnvVar, installDir)
	writeConfigFile(t, installDir, `<?xml version="1.0"?>
<config>
  <cache removePreviousPackageOnLabelUpdate="false"/>
</config>`)

	merged, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if merged.Cache.RemovePreviousPackageOnLabelUpdate == nil || *merged.Cache.RemovePreviousPackageOnLabelUpdate {
		t.Fatal("expected the install-scope cache policy to override the user-scope one")
	}
}

func TestLoadRemotesCascadeConcatenatesInScopeOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfigFile(t, home, `<?xml version="1.0"?>
<config remotes="a">
  <remote name="a" type="s3" packageLocation="s3://bucket/a"/>
</config>`)

	installDir := t.TempDir()
	t.Setenv(InstallPathEnvVar, installDir)
	writeConfigFile(t, installDir, `<?xml version="1.0"?>
<config remotes="b">
  <remote name="b" type="s3" packageLocation="s3://bucket/b"/>
</config>`)

	merged, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Remotes) != 2 || merged.Remotes[0] != "user:a" || merged.Remotes[1] != "packman:b" {
		t.Fatalf("expected [user:a packman:b], got %v", merged.Remotes)
	}
	if len(merged.RemotesMap) != 2 {
		t.Fatalf("expected both remotes in the merged map, got %d", len(merged.RemotesMap))
	}
}

func TestLoadReportingSurfacesFromInstallScope(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfigFile(t, home, `<?xml version="1.0"?><config/>`)

	installDir := t.TempDir()
	t.Setenv(InstallPathEnvVar, installDir)
	writeConfigFile(t, installDir, `<?xml version="1.0"?>
<config>
  <reporting bugsnagApiKey="abc123" logstashAddr="logstash.internal:5000"/>
</config>`)

	merged, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if merged.Reporting == nil {
		t.Fatal("expected a reporting block")
	}
	if merged.Reporting.BugsnagAPIKey != "abc123" || merged.Reporting.LogstashAddr != "logstash.internal:5000" {
		t.Fatalf("got %+v", merged.Reporting)
	}
}

func TestLoadMissingFilesIsNotAnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(InstallPathEnvVar, "")

	merged, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if merged.Cache == nil || len(merged.RemotesMap) != 0 {
		t.Fatalf("expected an empty-but-usable merged config, got %+v", merged)
	}
}
