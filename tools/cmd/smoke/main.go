// unison-payments/tools/cmd/smoke/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type instrumentOut struct {
	OK         bool `json:"ok"`
	Instrument struct {
		InstrumentID string `json:"instrument_id"`
		PersonID     string `json:"person_id"`
	} `json:"instrument"`
}

type transactionOut struct {
	OK          bool `json:"ok"`
	Transaction struct {
		TxnID  string `json:"txn_id"`
		Status string `json:"status"`
	} `json:"transaction"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8089", "payments API base URL")
	token := flag.String("token", "", "bearer baton (leave empty when auth is disabled)")
	person := flag.String("person", "smoke-person", "person_id to register the instrument for")
	amount := flag.String("amount", "1.23", "transaction amount")
	flag.Parse()

	client := resty.New().SetBaseURL(*baseURL).SetTimeout(5 * time.Second)
	if *token != "" {
		client.SetAuthToken(*token)
	}

	if err := run(client, *person, *amount); err != nil {
		log.Fatalf("payments smoke failed: %v", err)
	}
}

func run(client *resty.Client, person, amount string) error {
	var inst instrumentOut
	resp, err := client.R().
		SetBody(map[string]any{
			"person_id": person,
			"provider":  "mock",
			"kind":      "card",
			"last4":     "4242",
			"token":     "tok_smoke",
		}).
		SetResult(&inst).
		Post("/payments/instruments")
	if err := check("register instrument", resp, err); err != nil {
		return err
	}

	var txn transactionOut
	resp, err = client.R().
		SetBody(map[string]any{
			"person_id":             inst.Instrument.PersonID,
			"instrument_id":         inst.Instrument.InstrumentID,
			"amount":                amount,
			"currency":              "USD",
			"authorization_context": map[string]any{"approved": true},
		}).
		SetResult(&txn).
		Post("/payments/transactions")
	if err := check("create transaction", resp, err); err != nil {
		return err
	}

	var fetched transactionOut
	resp, err = client.R().
		SetPathParam("txn", txn.Transaction.TxnID).
		SetResult(&fetched).
		Get("/payments/transactions/{txn}")
	if err := check("get transaction", resp, err); err != nil {
		return err
	}
	if fetched.Transaction.Status != txn.Transaction.Status {
		return fmt.Errorf("status mismatch: created %q, fetched %q", txn.Transaction.Status, fetched.Transaction.Status)
	}

	log.Printf("payments smoke passed: instrument=%s txn=%s status=%s",
		inst.Instrument.InstrumentID, txn.Transaction.TxnID, fetched.Transaction.Status)
	return nil
}

func check(step string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", step, resp.StatusCode(), resp.String())
	}
	return nil
}
