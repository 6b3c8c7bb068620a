package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rkllmd/pkg/types"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available to the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ModelsResponse
		if err := getJSON("/models", &resp); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFAMILY\tQUANT\tSIZE")
		for _, m := range resp.Models {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Family, m.Quant, humanSize(m.SizeBytes))
		}
		return tw.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and instance status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st types.StatusResponse
		if err := getJSON("/status", &st); err != nil {
			return err
		}
		fmt.Printf("state: %s  uptime: %s\n", st.State, (time.Duration(st.UptimeSeconds) * time.Second).String())
		fmt.Printf("memory: %d/%d MB used (margin %d MB)\n", st.UsedMB, st.BudgetMB, st.MarginMB)
		fmt.Printf("loads: %d  evictions: %d\n", st.LoadsTotal, st.EvictionsTotal)
		if st.LastError != "" {
			fmt.Printf("last error: %s\n", st.LastError)
		}
		if len(st.Instances) == 0 {
			fmt.Println("no instances loaded")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tSTATE\tMEM_MB\tQUEUE\tINFLIGHT\tCALL_PATH\tKV_TOKENS")
		for _, inst := range st.Instances {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\n",
				inst.ModelID, inst.State, inst.EstMemMB, inst.QueueLen, inst.Inflight,
				inst.CallPath, inst.KVCacheTokens)
		}
		return tw.Flush()
	},
}

var capabilityCmd = &cobra.Command{
	Use:   "capability",
	Short: "Show which native call paths the daemon can use",
	RunE: func(cmd *cobra.Command, args []string) error {
		var rep types.CapabilityResponse
		if err := getJSON("/capability", &rep); err != nil {
			return err
		}
		fmt.Printf("host: %s/%s (%s %s)\n", rep.OS, rep.Arch, rep.RuntimeName, rep.RuntimeVersion)
		fmt.Printf("compiled-ext: %v\n", rep.CompiledExt)
		fmt.Printf("dynamic-lib:  %v\n", rep.DynamicLib)
		fmt.Printf("selected:     %s\n", rep.Selected)
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <model>",
	Short: "Preload a model instance in the background",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]string
		if err := postJSON("/switch", map[string]string{"model": args[0]}, &resp); err != nil {
			return err
		}
		fmt.Printf("switch accepted: model=%s op=%s\n", resp["model"], resp["op_id"])
		return nil
	},
}

var unloadCmd = &cobra.Command{
	Use:   "unload <model>",
	Short: "Unload a resident model instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/unload", map[string]string{"model": args[0]}, nil); err != nil {
			return err
		}
		fmt.Printf("unloaded %s\n", args[0])
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run streaming generation against the daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		if prompt == "" {
			// Read the prompt from stdin when not given as an argument.
			b, err := readAllStdin()
			if err != nil {
				return err
			}
			prompt = strings.TrimSpace(string(b))
		}
		if prompt == "" {
			return fmt.Errorf("empty prompt")
		}

		model, _ := cmd.Flags().GetString("model")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		topP, _ := cmd.Flags().GetFloat64("top-p")
		topK, _ := cmd.Flags().GetInt("top-k")
		role, _ := cmd.Flags().GetString("role")
		thinking, _ := cmd.Flags().GetBool("thinking")
		keepHistory, _ := cmd.Flags().GetBool("keep-history")
		adapters, _ := cmd.Flags().GetStringSlice("adapter")
		rawJSON, _ := cmd.Flags().GetBool("json")

		req := types.InferRequest{
			Model:          model,
			Prompt:         prompt,
			Role:           role,
			Stream:         true,
			MaxTokens:      maxTokens,
			Temperature:    temperature,
			TopP:           topP,
			TopK:           topK,
			KeepHistory:    keepHistory,
			EnableThinking: thinking,
			Adapters:       adapters,
		}
		return streamGenerate(req, rawJSON)
	},
}

func init() {
	generateCmd.Flags().StringP("model", "m", "", "Model id (daemon default when empty)")
	generateCmd.Flags().Int("max-tokens", 0, "Maximum new tokens")
	generateCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	generateCmd.Flags().Float64("top-p", 0, "Nucleus sampling probability")
	generateCmd.Flags().Int("top-k", 0, "Top-k sampling")
	generateCmd.Flags().String("role", "", "Chat role applied to the prompt")
	generateCmd.Flags().Bool("thinking", false, "Enable the model's thinking mode")
	generateCmd.Flags().Bool("keep-history", false, "Keep conversation state in the runtime")
	generateCmd.Flags().StringSlice("adapter", nil, "LoRA adapter to apply (repeatable)")
	generateCmd.Flags().Bool("json", false, "Print raw NDJSON events instead of token text")
}

func streamGenerate(req types.InferRequest, rawJSON bool) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := streamClient.Post(serverURL+"/infer", "application/json", strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if rawJSON {
			fmt.Println(string(line))
			continue
		}
		var ev types.TokenEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		out, done, err := renderEvent(ev)
		if err != nil {
			return err
		}
		fmt.Print(out)
		if done {
			break
		}
	}
	return sc.Err()
}

// renderEvent converts one token event into printable output. The final
// event yields a trailing newline plus a usage summary on stderr-style
// formatting.
func renderEvent(ev types.TokenEvent) (out string, done bool, err error) {
	if ev.Error != "" {
		return "", true, fmt.Errorf("generation failed: %s", ev.Error)
	}
	if !ev.Done {
		return ev.Token, false, nil
	}
	var sb strings.Builder
	sb.WriteString("\n")
	if ev.Usage != nil {
		u := ev.Usage
		sb.WriteString(fmt.Sprintf("[%s] prefill %d tok / %.0f ms, generate %d tok / %.0f ms\n",
			ev.FinishReason, u.PrefillTokens, u.PrefillTimeMS, u.GenerateTokens, u.GenerateTimeMS))
	}
	return sb.String(), true, nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}

func readAllStdin() ([]byte, error) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var sb strings.Builder
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteString("\n")
	}
	return []byte(sb.String()), sc.Err()
}
