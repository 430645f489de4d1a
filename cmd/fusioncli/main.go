package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	fusionx "github.com/Anmol-Dhiman/stellar-fusionX"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiond"
	"github.com/urfave/cli"
)

const defaultRequestTimeout = 30 * time.Second

func printJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}

	fmt.Println(string(b))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[fusioncli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = fusionx.Version()
	app.Name = "fusioncli"
	app.Usage = "control plane for your fusiond"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "restserver",
			Value: "http://localhost:8088",
			Usage: "fusiond REST address",
		},
	}
	app.Commands = []cli.Command{
		submitCommand, orderCommand, acceptCommand, revealCommand,
		solversCommands, permitCommands, secretCommands,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// client talks to the REST server of fusiond.
type client struct {
	baseURL string
	http    *http.Client
}

func getClient(ctx *cli.Context) *client {
	return &client{
		baseURL: strings.TrimSuffix(
			ctx.GlobalString("restserver"), "/",
		),
		http: &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *client) get(path string, resp interface{}) error {
	return c.do(http.MethodGet, path, nil, resp)
}

func (c *client) post(path string, req, resp interface{}) error {
	return c.do(http.MethodPost, path, req, resp)
}

func (c *client) do(method, path string, req, resp interface{}) error {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusBadRequest {
		var errResp fusiond.ErrorResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("request failed: %v", httpResp.Status)
		}

		return fmt.Errorf("%v: %v", errResp.Error, errResp.Message)
	}

	return json.NewDecoder(httpResp.Body).Decode(resp)
}
