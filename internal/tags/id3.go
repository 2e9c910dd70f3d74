package tags

import (
	"math/big"
	"strconv"

	"github.com/bogem/id3v2/v2"

	"tempo/internal/services"
)

const defaultRatingEmail = "tempo@localhost"

func writeID3(path, name, value, userEmail string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return services.Wrap(services.ErrIO, "tags", "open id3", path, err)
	}
	defer tag.Close()

	switch name {
	case TagBPM:
		id := tag.CommonID("BPM")
		tag.DeleteFrames(id)
		tag.AddTextFrame(id, tag.DefaultEncoding(), value)
	case TagGenre:
		tag.SetGenre(value)
	case TagComment:
		id := tag.CommonID("Comments")
		tag.DeleteFrames(id)
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding: tag.DefaultEncoding(),
			Language: "eng",
			Text:     value,
		})
	case TagRating:
		rating, _ := strconv.Atoi(value)
		email := userEmail
		if email == "" {
			email = defaultRatingEmail
		}
		setPopularimeter(tag, email, popularimeterRating(rating))
	}

	if err := tag.Save(); err != nil {
		return services.Wrap(services.ErrIO, "tags", "save id3", path, err)
	}
	return nil
}

// setPopularimeter replaces the POPM frame for email and keeps other users' frames.
func setPopularimeter(tag *id3v2.Tag, email string, rating uint8) {
	id := tag.CommonID("Popularimeter")
	var keep []id3v2.PopularimeterFrame
	for _, f := range tag.GetFrames(id) {
		if popm, ok := f.(id3v2.PopularimeterFrame); ok && popm.Email != email {
			keep = append(keep, popm)
		}
	}
	tag.DeleteFrames(id)
	for _, popm := range keep {
		tag.AddFrame(id, popm)
	}
	tag.AddFrame(id, id3v2.PopularimeterFrame{Email: email, Rating: rating, Counter: big.NewInt(0)})
}
