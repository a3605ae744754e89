package plog

import (
	"fmt"

	bugsnaghook "github.com/Shopify/logrus-bugsnag"
	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/bugsnag/bugsnag-go"
	"github.com/sirupsen/logrus"
	"github.com/yvasiyarov/gorelic"
)

// addLogstashHook wires bshuster-repo/logrus-logstash-hook as a logrus.Hook,
// since the modern package (unlike the teacher's legacy
// Sirupsen/logrus/formatters/logstash) ships as a Hook rather than a
// Formatter.
func addLogstashHook(addr string) error {
	if addr == "" {
		return nil
	}
	hook, err := logstash.NewHook("tcp", addr, "packman")
	if err != nil {
		return fmt.Errorf("configuring logstash hook: %w", err)
	}
	logrus.AddHook(hook)
	return nil
}

// configureReporting wires the optional crash/performance reporting hooks,
// gated by configuration exactly like the teacher's configureReporting, but
// attached to logrus instead of wrapped around an http.Handler — packman has
// no handler to wrap.
func configureReporting(r Reporting) error {
	if r.BugsnagAPIKey != "" {
		cfg := bugsnag.Configuration{APIKey: r.BugsnagAPIKey}
		if r.BugsnagReleaseStage != "" {
			cfg.ReleaseStage = r.BugsnagReleaseStage
		}
		if r.BugsnagEndpoint != "" {
			cfg.Endpoint = r.BugsnagEndpoint
		}
		bugsnag.Configure(cfg)

		hook, err := bugsnaghook.NewBugsnagHook()
		if err != nil {
			return fmt.Errorf("configuring bugsnag hook: %w", err)
		}
		logrus.AddHook(hook)
	}

	if r.NewRelicLicenseKey != "" {
		agent := gorelic.NewAgent()
		agent.NewrelicLicense = r.NewRelicLicenseKey
		if r.NewRelicName != "" {
			agent.NewrelicName = r.NewRelicName
		}
		agent.Verbose = false
		agent.Run()
	}

	return nil
}
