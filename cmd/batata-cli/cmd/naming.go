package cmd

import (
	"net/url"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	nsFlag      string
	groupFlag   string
	serviceFlag string
)

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Inspect namespaces",
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all namespaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		var namespaces []struct {
			Namespace         string `json:"namespace"`
			NamespaceShowName string `json:"namespaceShowName"`
			NamespaceDesc     string `json:"namespaceDesc"`
			ConfigCount       int    `json:"configCount"`
		}
		if err := c.Get(cmd.Context(), "/v2/console/namespace/list", nil, &namespaces); err != nil {
			return err
		}

		rows := pterm.TableData{{"ID", "NAME", "DESCRIPTION"}}
		for _, ns := range namespaces {
			rows = append(rows, []string{ns.Namespace, ns.NamespaceShowName, ns.NamespaceDesc})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Inspect the service registry",
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered services in a namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		var view struct {
			Count int      `json:"count"`
			Doms  []string `json:"doms"`
		}
		params := url.Values{"namespaceId": {nsFlag}, "groupName": {groupFlag}}
		if err := c.Get(cmd.Context(), "/v2/ns/service/list", params, &view); err != nil {
			return err
		}

		pterm.Info.Printf("%d service(s)\n", view.Count)
		for _, name := range view.Doms {
			pterm.Println(name)
		}
		return nil
	},
}

var serviceInstancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List a service's instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		var info struct {
			Hosts []struct {
				IP      string  `json:"IP"`
				Port    int     `json:"Port"`
				Cluster string  `json:"Cluster"`
				Weight  float64 `json:"Weight"`
				Healthy bool    `json:"Healthy"`
				Enabled bool    `json:"Enabled"`
			} `json:"Hosts"`
		}
		params := url.Values{"namespaceId": {nsFlag}, "groupName": {groupFlag}, "serviceName": {serviceFlag}}
		if err := c.Get(cmd.Context(), "/v2/ns/instance/list", params, &info); err != nil {
			return err
		}

		rows := pterm.TableData{{"IP", "PORT", "CLUSTER", "WEIGHT", "HEALTHY", "ENABLED"}}
		for _, h := range info.Hosts {
			rows = append(rows, []string{
				h.IP,
				strconv.Itoa(h.Port),
				h.Cluster,
				strconv.FormatFloat(h.Weight, 'f', -1, 64),
				strconv.FormatBool(h.Healthy),
				strconv.FormatBool(h.Enabled),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	namespaceCmd.AddCommand(namespaceListCmd)

	serviceCmd.PersistentFlags().StringVar(&nsFlag, "namespace", "public", "namespace id")
	serviceCmd.PersistentFlags().StringVar(&groupFlag, "group", "DEFAULT_GROUP", "service group")
	serviceInstancesCmd.Flags().StringVar(&serviceFlag, "service", "", "service name")

	serviceCmd.AddCommand(serviceListCmd, serviceInstancesCmd)
	rootCmd.AddCommand(namespaceCmd, serviceCmd)
}
