package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bjaus/lcservice"
	"github.com/bjaus/lcservice/platform"
)

const packagesCallback = "packages"

type inventory struct {
	svc    *lcservice.Service
	logger *slog.Logger
}

func newInventory(name, secret string, logger *slog.Logger, opts ...lcservice.Option) (*lcservice.Service, error) {
	inv := &inventory{logger: logger}
	svc, err := lcservice.NewBuilder(name, secret, append(opts, lcservice.WithLogger(logger))...).
		OnOrgInstall(inv.install).
		OnDetection(inv.detection).
		OnRequest(inv.request).
		OnNewSensor(inv.newSensor).
		RequestParams(map[string]lcservice.ParamDef{
			"sid": {Type: lcservice.ParamUUID, Description: "sensor to inventory", Required: true},
		}).
		Callback(packagesCallback, inv.packages).
		Build()
	if err != nil {
		return nil, err
	}
	inv.svc = svc
	return svc, nil
}

func (inv *inventory) install(ctx context.Context, _ platform.API, oid string, _ lcservice.Request) (any, error) {
	inv.logger.InfoContext(ctx, "installed", "oid", oid)
	return true, nil
}

func (inv *inventory) detection(ctx context.Context, _ platform.API, oid string, req lcservice.Request) (any, error) {
	cat, _ := req.String("cat")
	inv.logger.InfoContext(ctx, "detection", "oid", oid, "cat", cat)
	return true, nil
}

func (inv *inventory) request(ctx context.Context, api platform.API, _ string, req lcservice.Request) (any, error) {
	sid, _ := req.String("sid")
	return inv.survey(ctx, api, sid)
}

// newSensor surveys new sensors right away.
func (inv *inventory) newSensor(ctx context.Context, api platform.API, _ string, req lcservice.Request) (any, error) {
	sid := req.SID()
	if sid == "" {
		return false, nil
	}
	return inv.survey(ctx, api, sid)
}

func (inv *inventory) survey(ctx context.Context, api platform.API, sid string) (any, error) {
	job := lcservice.NewJob()
	job.SetCause("package inventory requested")
	job.AddSensor(sid)
	job.Narrate("listing packages", false)

	err := inv.svc.Task(ctx, api, sid, []string{"os_packages"}, lcservice.Tracking{
		Callback: packagesCallback,
		Job:      job,
		Context:  sid,
	})
	if err != nil {
		return nil, err
	}
	return lcservice.Success(nil).WithJobs(job), nil
}

func (inv *inventory) packages(ctx context.Context, _ platform.API, _ string, res lcservice.Resumed) (any, error) {
	event, _ := res.Event["event"].(map[string]any)
	list, _ := event["PACKAGES"].([]any)

	rows := make([][]any, 0, len(list))
	for _, p := range list {
		pkg, ok := p.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []any{pkg["NAME"], pkg["VERSION"]})
	}
	inv.logger.InfoContext(ctx, "packages listed", "sid", res.SID, "count", len(rows))

	resp := lcservice.Success(map[string]any{"packages": len(rows)})
	if res.Job == nil {
		return resp, nil
	}
	raw, err := lcservice.YAMLData("Packages", event)
	if err != nil {
		return nil, err
	}
	res.Job.Narrate(fmt.Sprintf("%d packages on %s", len(rows), res.Context), false,
		lcservice.Table("packages", []string{"name", "version"}, rows...), raw)
	res.Job.Close()
	return resp.WithJobs(res.Job), nil
}
