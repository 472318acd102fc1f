package social

import (
	"errors"
	"io"

	"backend-snapshare/internal/apperr"
	"backend-snapshare/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type commentRequest struct {
	Content string `json:"content" form:"content"`
}

func fail(message string, err error) error {
	return apperr.Public(fiber.StatusInternalServerError, message, err)
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/signup", func(c *fiber.Ctx) error {
		var req signupRequest
		if err := c.BodyParser(&req); err != nil {
			return fail("Error creating user", err)
		}
		if _, err := svc.Signup(c.UserContext(), req.Username, req.Email, req.Password); err != nil {
			return fail("Error creating user", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User created successfully"})
	})

	r.Post("/posts", authMiddleware, func(c *fiber.Ctx) error {
		file, err := c.FormFile("image")
		if err != nil {
			return fail("Error creating post", err)
		}
		f, err := file.Open()
		if err != nil {
			return fail("Error creating post", err)
		}
		defer f.Close()
		image, err := io.ReadAll(f)
		if err != nil {
			return fail("Error creating post", err)
		}

		post, err := svc.CreatePost(c.UserContext(), auth.UserID(c), image,
			file.Header.Get(fiber.HeaderContentType), file.Filename, c.FormValue("caption"))
		if errors.Is(err, ErrImageUpload) {
			return fail("Error uploading image", err)
		}
		if err != nil {
			return fail("Error creating post", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":  "Post created successfully",
			"postId":   post.ID,
			"imageUrl": post.ImageURL,
		})
	})

	r.Get("/posts", authMiddleware, func(c *fiber.Ctx) error {
		feed, err := svc.ListFeed(c.UserContext(), auth.UserID(c))
		if err != nil {
			return fail("Error fetching posts", err)
		}
		return c.JSON(feed)
	})

	r.Post("/posts/:postId/like", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.LikePost(c.UserContext(), auth.UserID(c), c.Params("postId")); err != nil {
			return fail("Error liking post", err)
		}
		return c.JSON(fiber.Map{"message": "Post liked successfully"})
	})

	r.Delete("/posts/:postId/like", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.UnlikePost(c.UserContext(), auth.UserID(c), c.Params("postId")); err != nil {
			return fail("Error unliking post", err)
		}
		return c.JSON(fiber.Map{"message": "Post unliked successfully"})
	})

	r.Post("/posts/:postId/comment", authMiddleware, func(c *fiber.Ctx) error {
		var req commentRequest
		if err := c.BodyParser(&req); err != nil {
			return fail("Error adding comment", err)
		}
		if _, err := svc.AddComment(c.UserContext(), auth.UserID(c), c.Params("postId"), req.Content); err != nil {
			return fail("Error adding comment", err)
		}
		return c.JSON(fiber.Map{"message": "Comment added successfully"})
	})

	r.Get("/posts/:postId/comments", authMiddleware, func(c *fiber.Ctx) error {
		comments, err := svc.ListComments(c.UserContext(), c.Params("postId"))
		if err != nil {
			return fail("Error fetching comments", err)
		}
		return c.JSON(comments)
	})

	r.Post("/users/:userId/follow", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.FollowUser(c.UserContext(), auth.UserID(c), c.Params("userId")); err != nil {
			return fail("Error following user", err)
		}
		return c.JSON(fiber.Map{"message": "User followed successfully"})
	})

	r.Delete("/users/:userId/follow", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.UnfollowUser(c.UserContext(), auth.UserID(c), c.Params("userId")); err != nil {
			return fail("Error unfollowing user", err)
		}
		return c.JSON(fiber.Map{"message": "User unfollowed successfully"})
	})

	r.Get("/users/:userId/profile", authMiddleware, func(c *fiber.Ctx) error {
		profile, err := svc.GetProfile(c.UserContext(), auth.UserID(c), c.Params("userId"))
		if err != nil {
			return fail("Error fetching user profile", err)
		}
		return c.JSON(profile)
	})
}
