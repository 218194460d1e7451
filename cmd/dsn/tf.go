package main

import (
	"flag"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/netlist"
	"github.com/edp1096/toy-dsn/pkg/poly"
	"github.com/edp1096/toy-dsn/pkg/util"
)

func runTF(args []string) error {
	fs := flag.NewFlagSet("tf", flag.ExitOnError)
	bodePath := fs.String("bode", "", "write a Bode plot of the transfer function (PNG)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected one netlist file")
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "reading netlist")
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		return err
	}
	if !data.HasTF {
		return errors.New("netlist has no .tf card")
	}
	ckt, err := data.Build()
	if err != nil {
		return err
	}

	p := data.TFParam
	var tf poly.TF
	name := fmt.Sprintf("V(%s)", p.OutP)
	if p.OutN == "" {
		tf, err = ckt.TransferFunction(p.In, p.OutP, p.Kind)
	} else {
		name = fmt.Sprintf("V(%s,%s)", p.OutP, p.OutN)
		tf, err = ckt.TransferFunctionDiff(p.In, p.OutP, p.OutN, p.Kind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", data.Title)
	fmt.Printf("%s / %s input %s (%d nodes)\n", name, p.Kind, p.In, len(data.Nodes))
	printTF(tf)

	var results map[string][]float64
	if data.HasAC {
		a := data.ACParam
		ac := analysis.NewAC(a.FStart, a.FStop, a.Points, a.Sweep)
		if p.OutN == "" {
			// numeric solve, cross-checks the symbolic form
			err = ac.Execute(ckt, p.In, p.OutP, p.Kind)
		} else {
			ac.ExecuteTF(name, tf)
		}
		if err != nil {
			return err
		}
		results = ac.GetResults()
		printResults(results)
	}

	if *bodePath == "" {
		return nil
	}
	if results == nil {
		lo, hi := plotRange(tf)
		ac := analysis.NewAC(lo, hi, 20, "DEC")
		ac.ExecuteTF(name, tf)
		results = ac.GetResults()
	}
	return writeBode(*bodePath, data.Title, name, results)
}

func formatPoly(p poly.Poly) string {
	p = poly.Trim(p)
	terms := make([]string, 0, len(p))
	for i, c := range p {
		if c == 0 {
			continue
		}
		switch deg := len(p) - 1 - i; deg {
		case 0:
			terms = append(terms, fmt.Sprintf("%.6g", c))
		case 1:
			terms = append(terms, fmt.Sprintf("%.6g s", c))
		default:
			terms = append(terms, fmt.Sprintf("%.6g s^%d", c, deg))
		}
	}
	if len(terms) == 0 {
		return "0"
	}
	return strings.Join(terms, " + ")
}

func printRoots(label string, roots []complex128, err error) {
	if err != nil {
		fmt.Printf("%s: %v\n", label, err)
		return
	}
	fmt.Printf("%s:", label)
	if len(roots) == 0 {
		fmt.Printf(" none")
	}
	for _, r := range roots {
		fmt.Printf(" %s", util.FormatFrequency(cmplx.Abs(r)/(2*math.Pi)))
		if imag(r) != 0 {
			fmt.Printf(" (%.3g%+.3gj rad/s)", real(r), imag(r))
		} else if real(r) > 0 {
			fmt.Printf(" (RHP)")
		}
	}
	fmt.Println()
}

func printTF(tf poly.TF) {
	fmt.Println("\nTransfer Function:")
	fmt.Println("==================")
	fmt.Printf("N(s) = %s\n", formatPoly(tf.Num))
	fmt.Printf("D(s) = %s\n", formatPoly(tf.Den))
	fmt.Printf("DC gain   = %s\n", util.FormatGain(analysis.DCGain(tf)))
	if bw := analysis.Bandwidth3dB(tf); bw > 0 {
		fmt.Printf("-3dB BW   = %s\n", util.FormatFrequency(bw))
	}
	if tau := analysis.GroupDelayDC(tf); !math.IsNaN(tau) && tau != 0 {
		fmt.Printf("DC delay  = %s\n", util.FormatValueFactor(tau, "s"))
	}
	poles, err := analysis.Poles(tf)
	printRoots("Poles", poles, err)
	zeros, err := analysis.Zeros(tf)
	printRoots("Zeros", zeros, err)
}

func printResults(results map[string][]float64) {
	freqs := results["FREQ"]
	fmt.Printf("\nAC Analysis Results (%d frequency points):\n", len(freqs))
	fmt.Println("Frequency      Transfer (Magnitude/Phase)")
	fmt.Println("------------------------------------------")

	var names []string
	for name := range results {
		if strings.HasSuffix(name, "_MAG") {
			names = append(names, strings.TrimSuffix(name, "_MAG"))
		}
	}
	sort.Strings(names)

	for i, freq := range freqs {
		fmt.Printf("%-13s", util.FormatFrequency(freq))
		for _, name := range names {
			mag, phase := results[name+"_MAG"], results[name+"_PHASE"]
			fmt.Printf("%s  ", util.FormatMagnitudePhase(name, mag[i], phase[i]))
		}
		fmt.Println()
	}
}
