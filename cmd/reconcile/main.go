package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/intentbase-backend/internal/app"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/reconcile"
	"github.com/yungbote/intentbase-backend/internal/types"
)

// reconcile imports a full taxonomy snapshot from a YAML file and replays it
// for one tenant:
//
//	reconcile -file snapshot.yaml -customer <uuid> -application <uuid>
//
// The file holds one sheet per intent:
//
//	sheets:
//	  - name: ORDER_STATUS
//	    description: order lifecycle questions
//	    phrases:
//	      - where is my order
//	      - track my package
func main() {
	var (
		file        = flag.String("file", "", "path to the YAML snapshot")
		customer    = flag.String("customer", "", "customer id (uuid)")
		application = flag.String("application", "", "application id (uuid)")
	)
	flag.Parse()

	if *file == "" || *customer == "" || *application == "" {
		flag.Usage()
		os.Exit(2)
	}

	customerID, err := uuid.Parse(*customer)
	if err != nil {
		fmt.Printf("Invalid customer id: %v\n", err)
		os.Exit(2)
	}
	applicationID, err := uuid.Parse(*application)
	if err != nil {
		fmt.Printf("Invalid application id: %v\n", err)
		os.Exit(2)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Printf("Failed to read snapshot: %v\n", err)
		os.Exit(1)
	}
	var snap reconcile.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		fmt.Printf("Failed to parse snapshot: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	tenant := types.Tenant{CustomerID: customerID, ApplicationID: applicationID}
	res, err := a.Services.Taxonomy.ReconcileSnapshot(context.Background(), tenant, snap)
	if err != nil {
		a.Log.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	a.Log.Info("Reconciliation complete",
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"inserted", res.Inserted,
		"merged", res.Merged,
		"duplicates", len(res.Duplicates))
}
