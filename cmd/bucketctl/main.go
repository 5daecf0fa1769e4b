// bucketctl is a command-line client for a bucket server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	baseURL string
	client  *Client
)

type uploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type uploadResponse struct {
	Uploaded int            `json:"uploaded"`
	Message  string         `json:"message"`
	Files    []uploadedFile `json:"files"`
}

type listItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SizeHuman  string `json:"size_human"`
	Age        string `json:"age"`
	Downloaded bool   `json:"downloaded"`
	URL        string `json:"url"`
}

type listResponse struct {
	Files []listItem `json:"files"`
}

// Client talks to the bucket server's JSON API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return c.HTTPClient.Do(req)
}

// Upload sends one or more local files in a single multipart batch.
func (c *Client) Upload(paths []string) (*uploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, p := range paths {
		file, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}

		fw, err := writer.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(fw, file); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to copy file: %w", err)
		}
		file.Close()
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var uploadResp uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &uploadResp, nil
}

func (c *Client) list(path string) (*listResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list failed with status %d: %s", resp.StatusCode, string(body))
	}

	var listResp listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &listResp, nil
}

// Download fetches a file to the given local path. Note: on a server
// configured with delete_on_download this consumes the file.
func (c *Client) Download(id, destPath string) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"files/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func (c *Client) Delete(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.BaseURL+"files/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) Info() (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("info failed with status %d: %s", resp.StatusCode, string(body))
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return info, nil
}

func printListing(resp *listResponse) {
	if len(resp.Files) == 0 {
		fmt.Println("No files.")
		return
	}
	for _, f := range resp.Files {
		status := ""
		if f.Downloaded {
			status = " [downloaded]"
		}
		fmt.Printf("%s  %-30s %8s  %s%s\n", f.ID, f.Name, f.SizeHuman, f.Age, status)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bucketctl",
	Short: "Client for a bucket file server",
	Long: `bucketctl uploads, lists, downloads, and deletes files on a
bucket server.

Quick start:
  bucketctl upload report.pdf notes.txt   # Upload files
  bucketctl list                          # Browse recent uploads
  bucketctl get <id> -o report.pdf        # Download a file
  bucketctl rm <id>                       # Delete a file (needs a token)
  bucketctl config set server https://bucket.example.com/`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		baseURL = viper.GetString("server")
		if baseURL == "" {
			baseURL = "http://localhost:8080/"
		}
		client = NewClient(baseURL, viper.GetString("token"))
	},
}

var uploadCmd = &cobra.Command{
	Use:     "upload <file>...",
	Aliases: []string{"u", "up"},
	Short:   "Upload one or more files",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Upload(args)
		if err != nil {
			return fmt.Errorf("error uploading: %w", err)
		}

		fmt.Println(resp.Message)
		for _, f := range resp.Files {
			fmt.Printf("  %s (%d bytes)\n", f.URL, f.Size)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List recent uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		mine, _ := cmd.Flags().GetBool("mine")
		path := "files"
		if mine {
			path = "my"
		}

		resp, err := client.list(path)
		if err != nil {
			return fmt.Errorf("error listing files: %w", err)
		}
		printListing(resp)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:     "get <file_id>",
	Aliases: []string{"g", "dl"},
	Short:   "Download a file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = id
		}

		if err := client.Download(id, out); err != nil {
			return fmt.Errorf("error downloading: %w", err)
		}

		fmt.Printf("Saved %s\n", out)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <file_id>",
	Aliases: []string{"delete", "del"},
	Short:   "Delete an uploaded file",
	Long: `Delete a file from the server. Requires a token with the
delete-own or delete-any capability; set it with:

  bucketctl config set token <jwt>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Delete(args[0]); err != nil {
			return fmt.Errorf("error deleting file: %w", err)
		}

		fmt.Printf("File %s deleted successfully!\n", args[0])
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the server's retention and upload policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := client.Info()
		if err != nil {
			return fmt.Errorf("error fetching info: %w", err)
		}

		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"c", "cfg"},
	Short:   "Manage client configuration",
	Long: `Manage client configuration settings.

Configuration is stored in ~/.bucketctl/config.yaml`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  • server: Server URL (e.g., https://bucket.example.com/)
  • token: Bearer token for authenticated requests

Example: bucketctl config set server https://bucket.example.com/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		viper.Set(args[0], args[1])
		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("error saving configuration: %w", err)
		}

		fmt.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := viper.GetString(args[0])
		if value == "" {
			fmt.Printf("%s is not set\n", args[0])
		} else {
			fmt.Printf("%s = %s\n", args[0], value)
		}
		return nil
	},
}

func init() {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".bucketctl")
	os.MkdirAll(configDir, 0755)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")
	viper.ReadInConfig() // Ignore errors if config file doesn't exist

	rootCmd.PersistentFlags().StringP("server", "s", "", "Server URL (default: http://localhost:8080/)")
	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authenticated requests")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	listCmd.Flags().BoolP("mine", "m", false, "List only your own uploads")
	getCmd.Flags().StringP("output", "o", "", "Output path (default: the file id)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
