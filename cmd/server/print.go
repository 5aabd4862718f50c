package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
)

func printStatusTable(id string, st server.Status) {
	writeStatusTable(os.Stdout, id, st)
}

func writeStatusTable(w io.Writer, id string, st server.Status) {
	pid := "-"
	if st.PID > 0 {
		pid = fmt.Sprint(st.PID)
	}
	uptime := "-"
	if st.Running {
		uptime = (time.Duration(st.UptimeSeconds) * time.Second).String()
	}
	memory := fmt.Sprintf("%.1f MiB", float64(st.MemoryBytes)/(1<<20))
	cpu := fmt.Sprintf("%.1f%%", st.CPUPercent)

	headers := []string{"ID", "STATE", "PID", "UPTIME", "MEMORY", "CPU"}
	values := []string{id, string(st.State), pid, uptime, memory, cpu}

	widths := make([]int, len(headers))
	for i := range headers {
		widths[i] = maxInt(len(headers[i]), len(values[i]))
	}

	sep := "+"
	for _, width := range widths {
		sep += strings.Repeat("-", width+2) + "+"
	}
	row := func(cells []string) string {
		line := "|"
		for i, cell := range cells {
			line += " " + pad(cell, widths[i]) + " |"
		}
		return line
	}

	fmt.Fprintln(w, sep)
	fmt.Fprintln(w, row(headers))
	fmt.Fprintln(w, sep)
	fmt.Fprintln(w, row(values))
	fmt.Fprintln(w, sep)
}

func printPlayers(list rcon.PlayerList) {
	fmt.Printf("%d of %d players online\n", list.Online, list.Max)
	for _, name := range list.Players {
		fmt.Printf("  %s\n", name)
	}
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
