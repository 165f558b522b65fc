package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/clinic-gateway/internal/business"
	"github.com/openkcm/clinic-gateway/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Clinic Gateway API server",
		"Clinic Gateway API server hosts the session endpoints, the backend forwarder and the guarded pages",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
