// Copyright (c) 2022 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {
}

func (metricsCmd) Run(ctx *context) error {
	var (
		mCardInfo = prometheus.NewDesc(
			"sdmmc_card_info",
			"Info metric regarding the detected card",
			[]string{"kind", "version", "product", "serial"}, nil,
		)
		mCapacity = prometheus.NewDesc(
			"sdmmc_card_capacity_kilobytes",
			"Detected card capacity",
			nil, nil,
		)
		mClock = prometheus.NewDesc(
			"sdmmc_card_clock_hertz",
			"Negotiated bus clock",
			nil, nil,
		)
		mBusWidth = prometheus.NewDesc(
			"sdmmc_card_bus_width_bits",
			"Negotiated bus width",
			nil, nil,
		)
		mHighSpeed = prometheus.NewDesc(
			"sdmmc_card_high_speed",
			"Boolean describing whether the high speed timing is active",
			nil, nil,
		)
	)

	card := ctx.ctrl.Card()
	cid := card.CID

	hs := float64(0)
	if card.HighSpeed {
		hs = 1
	}

	mc := &metricCollector{}
	mc.m = append(mc.m,
		prometheus.MustNewConstMetric(mCardInfo, prometheus.GaugeValue, 1,
			strings.TrimSpace(kindString(card.Kind)), card.Version.String(),
			cid.ProductName(), fmt.Sprintf("%08x", cid.SerialNumber)),
		prometheus.MustNewConstMetric(mCapacity, prometheus.GaugeValue, float64(card.CapacityKB)),
		prometheus.MustNewConstMetric(mClock, prometheus.GaugeValue, float64(card.Clock)),
		prometheus.MustNewConstMetric(mBusWidth, prometheus.GaugeValue, float64(card.Width)),
		prometheus.MustNewConstMetric(mHighSpeed, prometheus.GaugeValue, hs),
	)

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			log.Fatalf("Failed to serialize metrics: %v", err)
		}
	}
	return nil
}
