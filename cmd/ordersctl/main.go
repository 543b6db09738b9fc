package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jogardn/order-store/internal/config"
	"github.com/jogardn/order-store/internal/fixtures"
	"github.com/jogardn/order-store/internal/orders"
	"github.com/jogardn/order-store/pkg/models"
	"github.com/sirupsen/logrus"
)

const usage = `usage: ordersctl [-url URL] <command> [args]

commands:
  list                          list all orders
  get <id>                      show one order
  create -f order.json          create an order from a JSON file ("-" for stdin)
  status <id> <STATUS>          change the status of an order
  update <id> [flags]           change customer, email, total or status
  delete <id>                   delete an order and its items
  import -f orders.yaml         create every order in a YAML fixture file
  seed [-n N] [-seed S]         create N random orders
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	client *orders.Client
	out    io.Writer
	logger *logrus.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("ordersctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	baseURL := fs.String("url", cfg.Client.BaseURL, "order service base URL")
	timeout := fs.Duration("timeout", cfg.Client.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger := cfg.NewLogger()
	logger.SetOutput(stderr)

	c := &cli{
		client: orders.NewClient(*baseURL, *timeout, logger),
		out:    stdout,
		logger: logger,
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "list":
		err = c.list(ctx)
	case "get":
		err = c.get(ctx, rest)
	case "create":
		err = c.create(ctx, rest)
	case "status":
		err = c.status(ctx, rest)
	case "update":
		err = c.update(ctx, rest)
	case "delete":
		err = c.delete(ctx, rest)
	case "import":
		err = c.importFile(ctx, rest)
	case "seed":
		err = c.seed(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(stderr, err)
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func (c *cli) list(ctx context.Context) error {
	all, err := c.client.ListOrders(ctx)
	if err != nil {
		return err
	}
	return c.print(all)
}

func (c *cli) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: ordersctl get <id>")
	}
	order, err := c.client.GetOrder(ctx, args[0])
	if err != nil {
		return err
	}
	return c.print(order)
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	file := fs.String("f", "", "JSON file with the order, - for stdin")
	if err := fs.Parse(args); err != nil || *file == "" {
		return usageError("usage: ordersctl create -f order.json")
	}

	var r io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var in models.OrderInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to read order: %w", err)
	}

	id, err := c.client.CreateOrder(ctx, in)
	if err != nil {
		return err
	}
	return c.print(models.MessageResponse{Message: "Order saved", ID: id})
}

func (c *cli) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("usage: ordersctl status <id> <STATUS>")
	}
	resp, err := c.client.UpdateOrderStatus(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return c.print(resp)
}

func (c *cli) update(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return usageError("usage: ordersctl update <id> [-customer NAME] [-email EMAIL] [-total N] [-status STATUS]")
	}
	id := args[0]

	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	customer := fs.String("customer", "", "customer name")
	email := fs.String("email", "", "customer email")
	total := fs.Float64("total", 0, "order total")
	status := fs.String("status", "", "order status")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err.Error())
	}

	// Only flags given on the command line are sent.
	var upd models.OrderUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "customer":
			upd.CustomerName = customer
		case "email":
			upd.Email = email
		case "total":
			upd.Total = total
		case "status":
			upd.Status = status
		}
	})

	order, err := c.client.UpdateOrder(ctx, id, upd)
	if err != nil {
		return err
	}
	return c.print(order)
}

func (c *cli) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: ordersctl delete <id>")
	}
	if err := c.client.DeleteOrder(ctx, args[0]); err != nil {
		return err
	}
	return c.print(models.MessageResponse{Message: "Order deleted", ID: args[0]})
}

func (c *cli) importFile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("f", "", "YAML fixture file")
	if err := fs.Parse(args); err != nil || *file == "" {
		return usageError("usage: ordersctl import -f orders.yaml")
	}

	inputs, err := fixtures.LoadFile(*file)
	if err != nil {
		return err
	}
	return c.createAll(ctx, inputs)
}

func (c *cli) seed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of orders")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	maxItems := fs.Int("max-items", 5, "maximum items per order")
	if err := fs.Parse(args); err != nil || *n < 0 {
		return usageError("usage: ordersctl seed [-n N] [-seed S] [-max-items M]")
	}

	return c.createAll(ctx, fixtures.NewGenerator(*seed, *maxItems).Orders(*n))
}

// createAll keeps going after a failed order and reports how many failed.
func (c *cli) createAll(ctx context.Context, inputs []models.OrderInput) error {
	var ids []string
	failed := 0
	for i, in := range inputs {
		id, err := c.client.CreateOrder(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			c.logger.WithError(err).WithField("index", i).Error("Failed to create order")
			continue
		}
		ids = append(ids, id)
	}

	if err := c.print(map[string]interface{}{"created": ids, "failed": failed}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d orders failed", failed, len(inputs))
	}
	return nil
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
