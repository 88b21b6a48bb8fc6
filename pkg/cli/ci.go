package cli

import (
	"os"

	"github.com/devicelab-dev/gherkin-runner/pkg/report"
)

// detectCI reads build information from the CI provider's environment.
func detectCI() *report.CI {
	return detectCIFrom(os.Getenv)
}

func detectCIFrom(env func(string) string) *report.CI {
	switch {
	case env("GITHUB_ACTIONS") == "true":
		ci := &report.CI{
			Provider: "github",
			BuildID:  env("GITHUB_RUN_ID"),
			Branch:   env("GITHUB_REF_NAME"),
			Commit:   env("GITHUB_SHA"),
		}
		if server, repo := env("GITHUB_SERVER_URL"), env("GITHUB_REPOSITORY"); server != "" && repo != "" && ci.BuildID != "" {
			ci.BuildURL = server + "/" + repo + "/actions/runs/" + ci.BuildID
		}
		return ci
	case env("GITLAB_CI") == "true":
		return &report.CI{
			Provider: "gitlab",
			BuildID:  env("CI_PIPELINE_ID"),
			BuildURL: env("CI_PIPELINE_URL"),
			Branch:   env("CI_COMMIT_REF_NAME"),
			Commit:   env("CI_COMMIT_SHA"),
		}
	case env("JENKINS_URL") != "":
		return &report.CI{
			Provider: "jenkins",
			BuildID:  env("BUILD_NUMBER"),
			BuildURL: env("BUILD_URL"),
			Branch:   env("GIT_BRANCH"),
			Commit:   env("GIT_COMMIT"),
		}
	case env("CIRCLECI") == "true":
		return &report.CI{
			Provider: "circleci",
			BuildID:  env("CIRCLE_BUILD_NUM"),
			BuildURL: env("CIRCLE_BUILD_URL"),
			Branch:   env("CIRCLE_BRANCH"),
			Commit:   env("CIRCLE_SHA1"),
		}
	case env("TF_BUILD") == "True":
		return &report.CI{
			Provider: "azure",
			BuildID:  env("BUILD_BUILDID"),
			Branch:   env("BUILD_SOURCEBRANCHNAME"),
			Commit:   env("BUILD_SOURCEVERSION"),
		}
	}
	return nil
}
