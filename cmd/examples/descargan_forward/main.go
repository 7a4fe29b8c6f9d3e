package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	descargan "github.com/LdDl/descargan-go"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	batchSize   = flag.Int("batch", 2, "Batch size")
	imgSize     = flag.Int("size", 64, "Height and width of images. Must be divisible by 32")
	imgChannels = flag.Int("channels", 1, "Number of image channels")
	nf          = flag.Int("nf", 8, "Base number of filters")
	illLabel    = flag.Int("ill", 1, "Label value of diseased images")
	training    = flag.Bool("training", false, "Build graph in training mode (batch statistics, dropout)")
	plotFile    = flag.String("plot", "generated.png", "Where to save heatmap of the first generated image. Empty string disables plotting")
)

func main() {
	flag.Parse()
	// Initialize seed with constant value to reproduce results
	rand.Seed(1337)

	imgShape := []int{*batchSize, *imgSize, *imgSize, *imgChannels}
	labels := make([]int, *batchSize)
	for i := range labels {
		labels[i] = *illLabel
	}

	g := gorgonia.NewGraph()

	// Define both models on the same graph
	generator, err := descargan.NewGenerator(g, *illLabel, descargan.WithChannels(*imgChannels), descargan.WithFilters(*nf))
	if err != nil {
		panic(err)
	}
	discriminator, err := descargan.NewDiscriminator(g, *illLabel, descargan.WithChannels(*imgChannels), descargan.WithFilters(*nf))
	if err != nil {
		panic(err)
	}

	// Generator feedforward
	input := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(imgShape...), gorgonia.WithName("input"))
	generated, err := generator.Fwd(input, labels, *training)
	if err != nil {
		panic(err)
	}
	// Discriminator feedforward on generated images
	scores, logits, err := discriminator.Fwd(generated, labels, *training)
	if err != nil {
		panic(err)
	}

	/* Define variables for reading evaluation graph's output */
	var generatedVal, scoresVal, logitsVal gorgonia.Value
	gorgonia.Read(generated, &generatedVal)
	gorgonia.Read(scores, &scoresVal)
	gorgonia.Read(logits, &logitsVal)

	fmt.Printf("Generator: %d learnables, branch '%s', output shape %v\n", len(generator.Learnables()), generator.LastBranch(), generated.Shape())
	fmt.Printf("Discriminator: %d learnables, branch '%s', scores shape %v, logits shape %v\n", len(discriminator.Learnables()), discriminator.LastBranch(), scores.Shape(), logits.Shape())

	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()

	images, err := descargan.UniformRandDense(tensor.Float32, imgShape...)
	if err != nil {
		panic(err)
	}
	err = gorgonia.Let(input, images)
	if err != nil {
		panic(err)
	}
	st := time.Now()
	err = tm.RunAll()
	if err != nil {
		panic(err)
	}
	tm.Reset()
	fmt.Println("Forward pass took", time.Since(st))

	if *training {
		if err := generator.CommitStatistics(); err != nil {
			panic(err)
		}
		if err := discriminator.CommitStatistics(); err != nil {
			panic(err)
		}
	}

	mean, std, err := descargan.Summarize(generatedVal.(tensor.Tensor))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Generated images: mean %.4f, std %.4f\n", mean, std)
	fmt.Println("Critic scores:", scoresVal)
	fmt.Println("Classification logits:", logitsVal)

	if *plotFile != "" {
		if err := descargan.PlotImage(generatedVal.(tensor.Tensor), 0, 0, *plotFile); err != nil {
			panic(err)
		}
		fmt.Println("Saved heatmap to", *plotFile)
	}
}
