package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/coordinator"
	"bloodlink.org/internal/gateway/remote"
	"bloodlink.org/internal/session"
	"bloodlink.org/internal/storage"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.SetFlags(0)
	base := env("BMS_GATEWAY_BASE_URL", "http://localhost:8000/api/")
	password := env("BMS_SMOKE_PASSWORD", "donate-blood")
	civilian := env("BMS_SMOKE_CIVILIAN", "carol")
	donor := env("BMS_SMOKE_DONOR", "olga")

	gw, err := remote.New(base)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	civStore := session.New(gw, storage.NewMemory())
	civSess, err := civStore.Login(ctx, civilian, password)
	if err != nil {
		log.Fatalf("login %s: %v", civilian, err)
	}
	if civSess.Identity.Role != blood.RoleCivilian {
		log.Fatalf("%s logged in as %s, want Civilian", civilian, civSess.Identity.Role)
	}
	donorStore := session.New(gw, storage.NewMemory())
	donorSess, err := donorStore.Login(ctx, donor, password)
	if err != nil {
		log.Fatalf("login %s: %v", donor, err)
	}
	group := donorSess.Identity.BloodGroup
	if !group.Valid() {
		log.Fatalf("%s has no blood group", donor)
	}

	civ := coordinator.New(gw, civStore)
	req, err := civ.SubmitRequest(ctx, blood.RequestDraft{BloodGroup: group, Quantity: 1, Address: "Smoke Test Ward"})
	if err != nil {
		log.Fatalf("submit request: %v", err)
	}
	if req.Status != blood.StatusPending {
		log.Fatalf("new request status %q, want Pending", req.Status)
	}

	dc := coordinator.New(gw, donorStore)
	donorID := donorSess.Identity.UserID
	view, err := dc.LoadDonorView(ctx, donorID)
	if err != nil {
		log.Fatalf("load donor view: %v", err)
	}
	if !slices.ContainsFunc(view.EligibleRequests, func(r blood.BloodRequest) bool { return r.ID == req.ID }) {
		log.Fatalf("request %d missing from the eligible pool", req.ID)
	}
	offer, err := dc.MakeOffer(ctx, donorID, req.ID)
	if err != nil {
		log.Fatalf("make offer: %v", err)
	}
	if _, err := dc.MakeOffer(ctx, donorID, req.ID); err == nil {
		log.Fatalf("duplicate offer on request %d accepted", req.ID)
	}
	view, _ = dc.DonorSnapshot()
	if slices.ContainsFunc(view.EligibleRequests, func(r blood.BloodRequest) bool { return r.ID == req.ID }) {
		log.Fatalf("request %d still eligible after offering", req.ID)
	}

	if err := dc.DeleteOffer(ctx, offer.ID); err != nil {
		log.Fatalf("withdraw offer: %v", err)
	}
	if dc.HasOffered(donorID, req.ID) {
		log.Fatalf("offer %d still present after withdrawal", offer.ID)
	}

	fmt.Printf("✅ bms smoke test passed: request=%d offer=%d\n", req.ID, offer.ID)
}
