package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// LogEntry matches the Zap JSON structure
type LogEntry struct {
	Level      string `json:"level"`
	Msg        string `json:"msg"`
	JobID      string `json:"job_id"`
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason"`
	Service    string `json:"service"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func main() {
	fmt.Println(colorCyan + "🚀 Marketplace Activity Monitor Starting..." + colorReset)
	fmt.Println(colorGray + "Listening for job events from the broker and workers..." + colorReset)
	fmt.Println("-------------------------------------------------------------------------")

	// Use docker service logs with follow and tail
	cmd := exec.Command("docker", "service", "logs", "-f", "marketplace_broker", "marketplace_worker-1", "marketplace_worker-2")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fmt.Printf("Error creating stdout pipe: %v\n", err)
		return
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("Error starting docker logs command: %v\n", err)
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()

		// Docker service logs format: "service_name.instance.id | {JSON}"
		parts := strings.SplitN(line, "|", 2)
		if len(parts) < 2 {
			continue
		}

		serviceLabel := strings.TrimSpace(parts[0])
		jsonPayload := strings.TrimSpace(parts[1])

		var entry LogEntry
		if err := json.Unmarshal([]byte(jsonPayload), &entry); err != nil {
			// Not a JSON log or different format, ignore
			continue
		}

		prettify(serviceLabel, entry)
	}

	if err := cmd.Wait(); err != nil {
		fmt.Printf("Docker command exited: %v\n", err)
	}
}

func prettify(serviceLabel string, entry LogEntry) {
	source := colorBlue + "BROKER" + colorReset
	if strings.Contains(serviceLabel, "worker-1") {
		source = colorPurple + "WORKER-1" + colorReset
	} else if strings.Contains(serviceLabel, "worker-2") {
		source = colorCyan + "WORKER-2" + colorReset
	}

	msg := entry.Msg
	jobID := entry.JobID

	switch {
	case strings.Contains(msg, "Job submitted"):
		fmt.Printf("[%s] 📥 "+colorYellow+"Submitted:"+colorReset+"  %s\n", source, jobID)
	case strings.Contains(msg, "Job assigned"):
		fmt.Printf("[%s] 🤝 "+colorBlue+"Assigned:"+colorReset+"   %s -> %s\n", source, jobID, entry.ProviderID)
	case strings.Contains(msg, "Executing job"):
		fmt.Printf("[%s] ⚙️  "+colorBlue+"Running:"+colorReset+"    %s\n", source, jobID)
	case strings.Contains(msg, "Job completed"):
		fmt.Printf("[%s] ✅ "+colorGreen+"Completed:"+colorReset+"  %s\n", source, jobID)
	case strings.Contains(msg, "Job failed"):
		fmt.Printf("[%s] 💥 "+colorRed+"Failed:"+colorReset+"     %s (%s)\n", source, jobID, entry.Reason)
	case strings.Contains(msg, "Job requeued for reassignment"):
		fmt.Printf("[%s] 🔁 "+colorYellow+"Requeued:"+colorReset+"   %s\n", source, jobID)
	case strings.Contains(msg, "Heartbeat"):
		// Skip heartbeats to keep it clean
	case entry.Level == "error":
		fmt.Printf("[%s] ❌ "+colorRed+"ERROR:"+colorReset+" %s\n", source, msg)
	}
}
