package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	cfgNamespace string
	cfgGroup     string
	cfgDataID    string
	cfgContent   string
	cfgType      string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Publish, query, and inspect configuration entries",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a config entry's content",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgDataID == "" {
			return fmt.Errorf("--data-id is required")
		}
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		var entry struct {
			Content string `json:"Content"`
			Type    string `json:"Type"`
			MD5     string `json:"MD5"`
		}
		if err := c.Get(cmd.Context(), "/v3/console/cs/config", configParams(), &entry); err != nil {
			return err
		}

		pterm.Info.Printf("type=%s md5=%s\n", entry.Type, entry.MD5)
		fmt.Println(entry.Content)
		return nil
	},
}

var configPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish (create or replace) a config entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgDataID == "" || cfgContent == "" {
			return fmt.Errorf("--data-id and --content are required")
		}
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		params := configParams()
		params.Set("content", cfgContent)
		if cfgType != "" {
			params.Set("type", cfgType)
		}
		if err := c.Post(cmd.Context(), "/v3/console/cs/config", params, nil); err != nil {
			return err
		}
		pterm.Success.Printf("Published %s/%s/%s\n", cfgNamespace, cfgGroup, cfgDataID)
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a config entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgDataID == "" {
			return fmt.Errorf("--data-id is required")
		}
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}
		if err := c.Delete(cmd.Context(), "/v3/console/cs/config", configParams(), nil); err != nil {
			return err
		}
		pterm.Success.Printf("Removed %s/%s/%s\n", cfgNamespace, cfgGroup, cfgDataID)
		return nil
	},
}

var configHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List a config entry's history records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgDataID == "" {
			return fmt.Errorf("--data-id is required")
		}
		c, err := clientProvider.Client()
		if err != nil {
			return err
		}

		var page struct {
			TotalCount int `json:"totalCount"`
			PageItems  []struct {
				NID       int64  `json:"NID"`
				Op        string `json:"Op"`
				Type      string `json:"Type"`
				MD5       string `json:"MD5"`
				CreatedAt string `json:"CreatedAt"`
			} `json:"pageItems"`
		}
		if err := c.Get(cmd.Context(), "/v3/console/cs/config/history", configParams(), &page); err != nil {
			return err
		}

		rows := pterm.TableData{{"NID", "OP", "TYPE", "MD5", "CREATED"}}
		for _, rec := range page.PageItems {
			rows = append(rows, []string{strconv.FormatInt(rec.NID, 10), rec.Op, rec.Type, rec.MD5, rec.CreatedAt})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func configParams() url.Values {
	return url.Values{
		"namespaceId": {cfgNamespace},
		"group":       {cfgGroup},
		"dataId":      {cfgDataID},
	}
}

func init() {
	configCmd.PersistentFlags().StringVar(&cfgNamespace, "namespace", "public", "namespace id")
	configCmd.PersistentFlags().StringVar(&cfgGroup, "group", "DEFAULT_GROUP", "config group")
	configCmd.PersistentFlags().StringVar(&cfgDataID, "data-id", "", "config dataId")
	configPublishCmd.Flags().StringVar(&cfgContent, "content", "", "config content")
	configPublishCmd.Flags().StringVar(&cfgType, "type", "", "content type (properties|yaml|json|xml|text)")

	configCmd.AddCommand(configGetCmd, configPublishCmd, configRemoveCmd, configHistoryCmd)
	rootCmd.AddCommand(configCmd)
}
