package main

import (
	"strconv"
	"strings"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/mbean"
)

const beanDomain = "vmstats"

// bean is the management view of one shell object.
type bean struct {
	name   mbean.Name
	attrs  []mbean.Attribute
	values map[string]string
	ops    []mbean.Operation
}

var statisticOps = []mbean.Operation{
	{
		Name:        "summary",
		Params:      []mbean.Parameter{{Name: "range", Type: "String"}},
		ReturnType:  "Summary",
		Impact:      mbean.ImpactInfo,
		Description: "aggregate samples of a range",
	},
	{
		Name:        "query",
		Params:      []mbean.Parameter{{Name: "range", Type: "String"}, {Name: "maxPoints", Type: "int"}},
		ReturnType:  "Sample[]",
		Impact:      mbean.ImpactInfo,
		Description: "samples of a range, at most maxPoints",
	},
	{
		Name:        "query",
		Params:      []mbean.Parameter{{Name: "range", Type: "String"}},
		ReturnType:  "Sample[]",
		Impact:      mbean.ImpactInfo,
		Description: "samples of a range",
	},
}

var storageOps = []mbean.Operation{
	{Name: "runRetention", ReturnType: "CleanupResult[]", Impact: mbean.ImpactActionInfo, Description: "delete expired segments"},
	{Name: "dryRunRetention", ReturnType: "CleanupResult[]", Impact: mbean.ImpactInfo, Description: "list expired segments"},
	{Name: "diskUsage", ReturnType: "DiskUsage[]", Impact: mbean.ImpactInfo, Description: "bytes per metric tier"},
}

// beans builds the management view of the registry and storage, sorted by
// name.
func (s *shell) beans() ([]bean, error) {
	var out []bean

	for _, m := range s.reg.All() {
		name, err := mbean.ParseName(beanDomain + ":type=Statistic,name=" + m.Name)
		if err != nil {
			return nil, err
		}
		chain := m.Chain()
		tiers := make([]string, 0, chain.NumTiers())
		samples := 0
		for i := 0; i < chain.NumTiers(); i++ {
			tiers = append(tiers, chain.Tier(i).String())
			samples += chain.View(i).Len()
		}

		b := bean{
			name: name,
			attrs: []mbean.Attribute{
				{Name: "Label", Type: "String", Description: "display name"},
				{Name: "Unit", Type: "String"},
				{Name: "Description", Type: "String"},
				{Name: "Tiers", Type: "String", Description: "retention tiers, finest first"},
				{Name: "Samples", Type: "int", Description: "samples held in memory"},
			},
			values: map[string]string{
				"Label":       m.Label,
				"Unit":        m.Unit,
				"Description": m.Description,
				"Tiers":       strings.Join(tiers, " "),
				"Samples":     strconv.Itoa(samples),
			},
			ops: append([]mbean.Operation(nil), statisticOps...),
		}
		out = append(out, b)
	}

	cfg := s.svc.Config()
	out = append(out, bean{
		name: mbean.Name{Domain: beanDomain, Type: "Storage"},
		attrs: []mbean.Attribute{
			{Name: "Dir", Type: "String"},
			{Name: "MemoryOnly", Type: "boolean"},
			{Name: "DiskUsage", Type: "long", Description: "bytes of all logs"},
			{Name: "PersistenceMode", Type: "String"},
		},
		values: map[string]string{
			"Dir":             cfg.Dir,
			"MemoryOnly":      strconv.FormatBool(s.svc.MemoryOnly()),
			"DiskUsage":       strconv.FormatInt(s.svc.DiskUsage(), 10),
			"PersistenceMode": cfg.Persistence.Mode,
		},
		ops: append([]mbean.Operation(nil), storageOps...),
	})

	for i := range out {
		mbean.SortAttributes(out[i].attrs)
		if err := mbean.SortOperations(out[i].ops); err != nil {
			return nil, errors.Wrapf(err, "bean %s", out[i].name)
		}
	}
	names := make([]mbean.Name, len(out))
	byName := make(map[mbean.Name]bean, len(out))
	for i, b := range out {
		names[i] = b.name
		byName[b.name] = b
	}
	mbean.SortNames(names)
	for i, n := range names {
		out[i] = byName[n]
	}
	return out, nil
}

func (s *shell) cmdBeans([]string) error {
	beans, err := s.beans()
	if err != nil {
		return err
	}
	t := s.table("Bean", "Attributes", "Operations")
	for _, b := range beans {
		t.Append([]string{b.name.String(), strconv.Itoa(len(b.attrs)), strconv.Itoa(len(b.ops))})
	}
	t.Render()
	return nil
}

func (s *shell) cmdDescribe(args []string) error {
	if len(args) != 1 {
		return usageError("describe")
	}
	want, err := mbean.ParseName(args[0])
	if err != nil {
		return err
	}
	beans, err := s.beans()
	if err != nil {
		return err
	}

	for _, b := range beans {
		if mbean.CompareNames(b.name, want) != 0 {
			continue
		}
		t := s.table("Attribute", "Type", "Access", "Value")
		for _, a := range b.attrs {
			access := "r"
			if a.Writable {
				access = "rw"
			}
			t.Append([]string{a.Name, a.Type, access, b.values[a.Name]})
		}
		t.Render()

		t = s.table("Operation", "Returns", "Impact", "Description")
		for _, op := range b.ops {
			t.Append([]string{op.Signature(), op.ReturnType, op.Impact.String(), op.Description})
		}
		t.Render()
		return nil
	}
	return errors.NewNotFound("bean", want.String())
}
