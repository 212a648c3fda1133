package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/render"
)

func newSubmitCmd() *cobra.Command {
	var (
		priority string
		caps     []string
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "submit <description>",
		Short: "Queue a task for orchestration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			description := strings.Join(args, " ")
			id, err := a.orch.Submit(cmd.Context(), description, caps, parsePriority(priority))
			if err != nil {
				return err
			}
			fmt.Println(id)

			if !wait {
				return nil
			}

			a.orch.Start(cmd.Context())
			defer a.orch.Stop()

			events, unsub := a.orch.Subscribe(64)
			defer unsub()
			for e := range events {
				if e.TaskID != id {
					continue
				}
				switch e.Type {
				case domain.EventCompleted, domain.EventFailed, domain.EventCancelled:
					return printStatus(cmd, a, id)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "task priority: high, normal, low")
	cmd.Flags().StringSliceVarP(&caps, "capability", "c", nil, "required agent capabilities")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "run the worker pool and wait for completion")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's lifecycle stage, plan, and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()
			return printStatus(cmd, a, args[0])
		},
	}
}

func printStatus(cmd *cobra.Command, a *app, taskID string) error {
	st, err := a.orch.Status(cmd.Context(), taskID)
	if err != nil {
		return err
	}

	r := render.New(pretty)
	fmt.Printf("task %s  stage=%s\n", st.Task.ID, st.Stage)
	if st.Plan != nil {
		fmt.Print(r.Plan(st.Plan))
	}
	if st.Result != nil {
		fmt.Print(r.Result(st.Result))
	}
	return nil
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or executing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.orch.Cancel(args[0]); err != nil {
				return err
			}
			fmt.Println("cancelled", args[0])
			return nil
		},
	}
}

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents and their load",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			agents := a.reg.List()
			ptrs := make([]*domain.Agent, len(agents))
			for i := range agents {
				ptrs[i] = &agents[i]
			}
			fmt.Print(render.New(pretty).Agents(ptrs))
			return nil
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show intake queue depth per priority tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			high, normal, low := a.queue.Sizes()
			fmt.Print(render.New(pretty).QueueStatus(high, normal, low))
			return nil
		},
	}
}

func parsePriority(s string) domain.Priority {
	switch strings.ToLower(s) {
	case "high":
		return domain.PriorityHigh
	case "low":
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}
